// File: /repositories/post_repository.go
package repositories

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chyrp-api/models"
)

// FeedQuery selects a page of posts. Filters are ANDed; zero values disable them.
type FeedQuery struct {
	ViewerID     uint // 0 for anonymous viewers
	Tag          string
	TagExact     bool // match the tag name exactly instead of as a substring
	CategorySlug string
	Offset       int
	Limit        int
}

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PostRepository) WithTx(tx *gorm.DB) *PostRepository {
	return &PostRepository{db: tx}
}

// Transaction runs fn in a single database transaction.
func (r *PostRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// detailColumns annotates a post row. like_count and liked_by_user are
// correlated subqueries so no join fans out the row.
const detailColumns = `posts.*,
	users.username AS username,
	categories.name AS category_name,
	categories.slug AS category_slug,
	(SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = posts.id) AS like_count,
	EXISTS (SELECT 1 FROM post_likes pl WHERE pl.post_id = posts.id AND pl.user_id = ?) AS liked_by_user`

type postRow struct {
	models.Post
	Username     string
	CategoryName *string
	CategorySlug *string
	LikeCount    int64
	LikedByUser  bool
}

func (r *PostRepository) filtered(ctx context.Context, q FeedQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Table("posts")
	switch {
	case q.Tag != "" && q.TagExact:
		db = db.Where(`EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.post_id = posts.id AND t.name = ?)`, strings.ToLower(strings.TrimSpace(q.Tag)))
	case q.Tag != "":
		db = db.Where(`EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.post_id = posts.id AND LOWER(t.name) LIKE ?)`, "%"+strings.ToLower(q.Tag)+"%")
	}
	if q.CategorySlug != "" {
		db = db.Where("posts.category_id IN (SELECT c.id FROM categories c WHERE c.slug = ?)", q.CategorySlug)
	}
	return db
}

func (r *PostRepository) withDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	return db.Select(detailColumns, viewerID).
		Joins("JOIN users ON users.id = posts.user_id").
		Joins("LEFT JOIN categories ON categories.id = posts.category_id")
}

// List returns one page of annotated posts and the number of posts matching
// the same filters.
func (r *PostRepository) List(ctx context.Context, q FeedQuery) ([]models.PostDetail, int64, error) {
	var total int64
	if err := r.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.PostDetail{}, 0, nil
	}

	var rows []postRow
	err := r.withDetails(r.filtered(ctx, q), q.ViewerID).
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	details := toDetails(rows)
	if err := r.attachRelations(ctx, details); err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

// GetDetail loads one annotated post. Returns gorm.ErrRecordNotFound when missing.
func (r *PostRepository) GetDetail(ctx context.Context, id, viewerID uint) (*models.PostDetail, error) {
	var rows []postRow
	err := r.withDetails(r.db.WithContext(ctx).Table("posts"), viewerID).
		Where("posts.id = ?", id).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	details := toDetails(rows)
	if err := r.attachRelations(ctx, details); err != nil {
		return nil, err
	}
	return &details[0], nil
}

func toDetails(rows []postRow) []models.PostDetail {
	details := make([]models.PostDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, models.PostDetail{
			Post:         row.Post,
			Username:     row.Username,
			CategoryName: row.CategoryName,
			CategorySlug: row.CategorySlug,
			LikeCount:    row.LikeCount,
			LikedByUser:  row.LikedByUser,
			Tags:         []string{},
			MediaURLs:    []string{},
		})
	}
	return details
}

// attachRelations loads tags and media with one query each, so the two
// one-to-many relations never multiply each other.
func (r *PostRepository) attachRelations(ctx context.Context, details []models.PostDetail) error {
	if len(details) == 0 {
		return nil
	}
	ids := make([]uint, len(details))
	index := make(map[uint]int, len(details))
	for i, d := range details {
		ids[i] = d.ID
		index[d.ID] = i
	}

	var tagRows []struct {
		PostID uint
		Name   string
	}
	err := r.db.WithContext(ctx).Table("post_tags").
		Select("DISTINCT post_tags.post_id, tags.name").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", ids).
		Order("tags.name").
		Scan(&tagRows).Error
	if err != nil {
		return err
	}
	for _, t := range tagRows {
		d := &details[index[t.PostID]]
		d.Tags = append(d.Tags, t.Name)
	}

	var media []models.PostMedia
	err = r.db.WithContext(ctx).
		Where("post_id IN ?", ids).
		Order("position").
		Order("id").
		Find(&media).Error
	if err != nil {
		return err
	}
	for _, m := range media {
		d := &details[index[m.PostID]]
		d.MediaURLs = append(d.MediaURLs, m.URL)
	}
	return nil
}

func (r *PostRepository) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// Update writes every editable column, including zero values.
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Model(post).
		Select("type", "title", "content", "link_url", "attribution", "license", "image_url", "category_id", "updated_at").
		Updates(post).Error
}

// Delete removes the post and everything hanging off it.
func (r *PostRepository) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	dependents := []interface{}{
		&models.PostTag{},
		&models.PostLike{},
		&models.PostView{},
		&models.PostMedia{},
		&models.Comment{},
		&models.Webmention{},
	}
	for _, model := range dependents {
		if err := db.Where("post_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return db.Delete(&models.Post{}, id).Error
}

// ReplaceMedia stores urls in the given order, dropping any previous media.
func (r *PostRepository) ReplaceMedia(ctx context.Context, postID uint, urls []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("post_id = ?", postID).Delete(&models.PostMedia{}).Error; err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}
	media := make([]models.PostMedia, len(urls))
	for i, url := range urls {
		media[i] = models.PostMedia{PostID: postID, URL: url, Position: i}
	}
	return db.Create(&media).Error
}

// RecordView inserts the (post, viewer) ledger row and bumps view_count only
// when that insert actually happened. The composite primary key on
// post_views turns concurrent first views into one insert and one no-op.
func (r *PostRepository) RecordView(ctx context.Context, postID, viewerID uint) (bool, error) {
	counted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.PostView{UserID: viewerID, PostID: postID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error; err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}

// ToggleLike flips the like for (user, post) and returns the fresh count.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, userID uint) (models.LikeResult, error) {
	var result models.LikeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			like := models.PostLike{UserID: userID, PostID: postID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			result.Liked = true
		}
		return tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&result.LikeCount).Error
	})
	if err != nil {
		return models.LikeResult{}, err
	}
	return result, nil
}

func (r *PostRepository) CountLikes(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

// SitemapEntry is the minimum needed to list a post in the sitemap.
type SitemapEntry struct {
	ID        uint
	UpdatedAt time.Time
}

func (r *PostRepository) ListForSitemap(ctx context.Context) ([]SitemapEntry, error) {
	var entries []SitemapEntry
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Select("id, updated_at").
		Order("created_at DESC").
		Order("id DESC").
		Scan(&entries).Error
	return entries, err
}
