// File: /repositories/webmention_repository.go
package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chyrp-api/models"
)

type WebmentionRepository struct {
	db *gorm.DB
}

func NewWebmentionRepository(db *gorm.DB) *WebmentionRepository {
	return &WebmentionRepository{db: db}
}

// Upsert stores the mention keyed by (source_url, target_url). A resend
// overwrites the metadata and clears verified until the source is checked again.
func (r *WebmentionRepository) Upsert(ctx context.Context, mention *models.Webmention) error {
	db := r.db.WithContext(ctx)
	mention.Verified = false
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_url"}, {Name: "target_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"post_id", "mention_type", "author_name", "author_url", "author_photo",
			"content", "verified", "published_at", "updated_at",
		}),
	}).Create(mention).Error
	if err != nil {
		return err
	}

	// The conflict path does not return the existing id on every dialect.
	return db.Where("source_url = ? AND target_url = ?", mention.SourceURL, mention.TargetURL).
		First(mention).Error
}

func (r *WebmentionRepository) FindByID(ctx context.Context, id uint) (*models.Webmention, error) {
	var mention models.Webmention
	if err := r.db.WithContext(ctx).First(&mention, id).Error; err != nil {
		return nil, err
	}
	return &mention, nil
}

// ListByPost returns mentions of a post, newest first.
func (r *WebmentionRepository) ListByPost(ctx context.Context, postID uint, verifiedOnly bool) ([]models.Webmention, error) {
	mentions := []models.Webmention{}
	db := r.db.WithContext(ctx).Where("post_id = ?", postID)
	if verifiedOnly {
		db = db.Where("verified = ?", true)
	}
	err := db.Order("published_at DESC").Order("id DESC").Find(&mentions).Error
	return mentions, err
}

func (r *WebmentionRepository) SetVerified(ctx context.Context, id uint, verified bool) error {
	return r.db.WithContext(ctx).Model(&models.Webmention{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"verified": verified, "updated_at": time.Now()}).Error
}
