// File: /repositories/tag_repository.go
package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chyrp-api/models"
)

type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) WithTx(tx *gorm.DB) *TagRepository {
	return &TagRepository{db: tx}
}

// ApplyTags links postID to every name, creating missing tags. Names must
// already be normalized. Both inserts tolerate conflicts so two writers
// introducing the same new tag both end up linked to the single row.
func (r *TagRepository) ApplyTags(ctx context.Context, postID uint, names []string) error {
	db := r.db.WithContext(ctx)
	for _, name := range names {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&models.Tag{Name: name}).Error; err != nil {
			return fmt.Errorf("insert tag %q: %w", name, err)
		}

		var tag models.Tag
		if err := db.Where("name = ?", name).First(&tag).Error; err != nil {
			return fmt.Errorf("lookup tag %q: %w", name, err)
		}

		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.PostTag{PostID: postID, TagID: tag.ID}).Error; err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

// ReplaceTags drops every link of the post, then applies names.
func (r *TagRepository) ReplaceTags(ctx context.Context, postID uint, names []string) error {
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	return r.ApplyTags(ctx, postID, names)
}

// TagsForPost returns the tag names linked to a post, alphabetically.
func (r *TagRepository) TagsForPost(ctx context.Context, postID uint) ([]string, error) {
	names := []string{}
	err := r.db.WithContext(ctx).Table("tags").
		Select("tags.name").
		Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
		Where("post_tags.post_id = ?", postID).
		Order("tags.name").
		Pluck("tags.name", &names).Error
	return names, err
}

// ListWithCounts returns every tag with the number of posts using it.
func (r *TagRepository) ListWithCounts(ctx context.Context) ([]models.TagWithCount, error) {
	tags := []models.TagWithCount{}
	err := r.db.WithContext(ctx).Table("tags").
		Select("tags.id, tags.name, COUNT(post_tags.post_id) AS post_count").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id, tags.name").
		Order("tags.name").
		Scan(&tags).Error
	return tags, err
}
