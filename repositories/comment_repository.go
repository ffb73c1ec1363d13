// File: /repositories/comment_repository.go
package repositories

import (
	"context"

	"gorm.io/gorm"

	"chyrp-api/models"
)

type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *CommentRepository) FindByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *CommentRepository) withAuthor(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("comments").
		Select("comments.*, users.username AS username").
		Joins("JOIN users ON users.id = comments.user_id")
}

// FindWithAuthor returns gorm.ErrRecordNotFound when the comment is missing.
func (r *CommentRepository) FindWithAuthor(ctx context.Context, id uint) (*models.CommentWithAuthor, error) {
	var rows []models.CommentWithAuthor
	if err := r.withAuthor(ctx).Where("comments.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// ListByPost returns a post's comments oldest first.
func (r *CommentRepository) ListByPost(ctx context.Context, postID uint) ([]models.CommentWithAuthor, error) {
	comments := []models.CommentWithAuthor{}
	err := r.withAuthor(ctx).
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Scan(&comments).Error
	return comments, err
}

func (r *CommentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Comment{}, id).Error
}
