// File: /services/comment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chyrp-api/models"
	"chyrp-api/repositories"
)

type CommentService struct {
	comments *repositories.CommentRepository
	posts    *repositories.PostRepository
	users    *repositories.UserRepository
	email    *EmailService
	cache    *reader
	log      *zap.Logger
}

func NewCommentService(
	comments *repositories.CommentRepository,
	posts *repositories.PostRepository,
	users *repositories.UserRepository,
	email *EmailService,
	cache Cache,
	log *zap.Logger,
) *CommentService {
	return &CommentService{
		comments: comments,
		posts:    posts,
		users:    users,
		email:    email,
		cache:    newReader(cache, log),
		log:      log,
	}
}

func (s *CommentService) findPost(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("post")
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return post, nil
}

// List returns the post's comments, oldest first.
func (s *CommentService) List(ctx context.Context, postID uint) ([]models.CommentWithAuthor, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Add appends a comment and returns it with the author's username.
func (s *CommentService) Add(ctx context.Context, postID, authorID uint, content string) (*models.CommentWithAuthor, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content", "Comment content is required")
	}
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, UserID: authorID, Content: content}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	created, err := s.comments.FindWithAuthor(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("load comment: %w", err)
	}

	s.cache.invalidate(ctx, nil, feedPrefix, postPrefix(postID))
	s.notify(post, created)
	return created, nil
}

// Delete removes a comment written by actorID.
func (s *CommentService) Delete(ctx context.Context, commentID, actorID uint) error {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("comment")
		}
		return fmt.Errorf("find comment: %w", err)
	}
	if comment.UserID != actorID {
		return fmt.Errorf("comment %d belongs to another user: %w", commentID, ErrForbidden)
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	s.cache.invalidate(ctx, nil, feedPrefix, postPrefix(comment.PostID))
	return nil
}

func (s *CommentService) notify(post *models.Post, comment *models.CommentWithAuthor) {
	if !s.email.Enabled() {
		return
	}
	go func() {
		author, err := s.users.FindByID(context.Background(), post.UserID)
		if err != nil {
			s.log.Warn("comment notification skipped", zap.Uint("post_id", post.ID), zap.Error(err))
			return
		}
		s.email.NotifyComment(author, post, comment)
	}()
}
