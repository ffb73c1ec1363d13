// File: /services/post_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chyrp-api/metrics"
	"chyrp-api/models"
	"chyrp-api/repositories"
)

const (
	DefaultPerPage = 5
	MaxPerPage     = 50
	MaxPage        = 100000
)

// FeedFilter narrows a feed. Both fields may be set at once. Tag matches
// as a substring unless ExactTag is set.
type FeedFilter struct {
	Tag          string
	ExactTag     bool
	CategorySlug string
}

func (f FeedFilter) kind() string {
	switch {
	case f.Tag != "" && f.CategorySlug != "":
		return "mixed"
	case f.Tag != "" && f.ExactTag:
		return "tagname"
	case f.Tag != "":
		return "tag"
	case f.CategorySlug != "":
		return "category"
	default:
		return "all"
	}
}

func (f FeedFilter) key() string {
	tag := strings.ToLower(f.Tag)
	if f.ExactTag {
		tag = "=" + tag
	}
	return tag + "|" + f.CategorySlug
}

// PostInput is the create and update payload. MediaURLs is a pointer so an
// update can tell "leave media alone" (nil) from "clear media" (empty).
type PostInput struct {
	Type        models.PostType `json:"type" binding:"omitempty,posttype"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	LinkURL     string          `json:"link_url" binding:"omitempty,url"`
	Attribution string          `json:"attribution"`
	License     string          `json:"license"`
	ImageURL    string          `json:"image_url"`
	CategoryID  *uint           `json:"category_id"`
	Tags        string          `json:"tags"`
	MediaURLs   *[]string       `json:"media_urls"`
}

// Validate applies the per-type field rules. Type defaults to text.
func (in *PostInput) Validate() error {
	if in.Type == "" {
		in.Type = models.PostTypeText
	}
	if !in.Type.Valid() {
		return invalid("type", "Invalid post type")
	}
	in.Title = strings.TrimSpace(in.Title)
	in.LinkURL = strings.TrimSpace(in.LinkURL)

	if in.Type != models.PostTypeQuote && in.Title == "" {
		return invalid("title", "Title is required")
	}
	if in.Type == models.PostTypeLink && in.LinkURL == "" {
		return invalid("link_url", "Link URL is required for link posts")
	}
	if in.Type == models.PostTypeQuote && strings.TrimSpace(in.Content) == "" {
		return invalid("content", "Content is required for quote posts")
	}
	if in.MediaURLs != nil {
		urls := make([]string, 0, len(*in.MediaURLs))
		for _, u := range *in.MediaURLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		in.MediaURLs = &urls
	}
	return nil
}

func (in *PostInput) apply(post *models.Post) {
	post.Type = in.Type
	post.Title = in.Title
	post.Content = in.Content
	post.LinkURL = in.LinkURL
	post.Attribution = in.Attribution
	post.License = in.License
	post.ImageURL = in.ImageURL
	post.CategoryID = in.CategoryID
	if in.MediaURLs != nil && len(*in.MediaURLs) > 0 {
		post.ImageURL = (*in.MediaURLs)[0]
	}
}

type PostService struct {
	posts      *repositories.PostRepository
	tags       *repositories.TagRepository
	categories *repositories.CategoryRepository
	cache      *reader
	log        *zap.Logger
}

func NewPostService(
	posts *repositories.PostRepository,
	tags *repositories.TagRepository,
	categories *repositories.CategoryRepository,
	cache Cache,
	log *zap.Logger,
) *PostService {
	return &PostService{
		posts:      posts,
		tags:       tags,
		categories: categories,
		cache:      newReader(cache, log),
		log:        log,
	}
}

// ClampPage normalizes user supplied paging parameters. The page cap keeps
// offset arithmetic far from overflow.
func ClampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// ListPosts returns one page of the feed as seen by viewerID (0 = anonymous).
func (s *PostService) ListPosts(ctx context.Context, viewerID uint, filter FeedFilter, page, perPage int) (*models.FeedResponse, error) {
	page, perPage = ClampPage(page, perPage)
	key := feedKey(filter.kind(), filter.key(), page, perPage, viewerID)

	return remember(ctx, s.cache, key, func() (*models.FeedResponse, error) {
		posts, total, err := s.posts.List(ctx, repositories.FeedQuery{
			ViewerID:     viewerID,
			Tag:          filter.Tag,
			TagExact:     filter.ExactTag,
			CategorySlug: filter.CategorySlug,
			Offset:       (page - 1) * perPage,
			Limit:        perPage,
		})
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		return &models.FeedResponse{
			Posts:      posts,
			Page:       page,
			PerPage:    perPage,
			TotalPosts: total,
			HasMore:    int64(page*perPage) < total,
		}, nil
	})
}

// CategoryFeed is ListPosts restricted to one category, which must exist.
func (s *PostService) CategoryFeed(ctx context.Context, viewerID uint, slug string, page, perPage int) (*models.CategoryFeedResponse, error) {
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("category")
		}
		return nil, fmt.Errorf("find category: %w", err)
	}

	feed, err := s.ListPosts(ctx, viewerID, FeedFilter{CategorySlug: category.Slug}, page, perPage)
	if err != nil {
		return nil, err
	}
	return &models.CategoryFeedResponse{
		FeedResponse: *feed,
		CategoryName: category.Name,
		CategorySlug: category.Slug,
	}, nil
}

// GetPost returns the annotated post. For a signed-in viewer other than the
// author the first read records a view; the returned view_count includes it.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.PostDetail, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("post")
		}
		return nil, fmt.Errorf("find post: %w", err)
	}

	if viewerID != 0 && viewerID != post.UserID {
		counted, err := s.posts.RecordView(ctx, postID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("record view: %w", err)
		}
		if counted {
			metrics.ViewsCounted.Inc()
			s.cache.invalidate(ctx, nil, feedPrefix, postPrefix(postID))
		}
	}

	return remember(ctx, s.cache, postKey(postID, viewerID), func() (*models.PostDetail, error) {
		detail, err := s.posts.GetDetail(ctx, postID, viewerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("post")
			}
			return nil, fmt.Errorf("load post: %w", err)
		}
		return detail, nil
	})
}

func (s *PostService) checkCategory(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	ok, err := s.categories.Exists(ctx, *id)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return invalid("category_id", "Category does not exist")
	}
	return nil
}

// CreatePost stores the post, its tags and its media in one transaction.
func (s *PostService) CreatePost(ctx context.Context, authorID uint, in PostInput) (*models.Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	post := &models.Post{UserID: authorID}
	in.apply(post)

	err := s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		if err := posts.Create(ctx, post); err != nil {
			return err
		}
		if err := s.tags.WithTx(tx).ApplyTags(ctx, post.ID, NormalizeTags(in.Tags)); err != nil {
			return err
		}
		if in.MediaURLs != nil {
			return posts.ReplaceMedia(ctx, post.ID, *in.MediaURLs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.invalidatePost(ctx, post.ID)
	s.log.Info("post created", zap.Uint("post_id", post.ID), zap.Uint("user_id", authorID), zap.String("type", string(post.Type)))
	return post, nil
}

// authorize loads the post and checks that actorID wrote it.
func (s *PostService) authorize(ctx context.Context, postID, actorID uint) (*models.Post, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("post")
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	if post.UserID != actorID {
		return nil, fmt.Errorf("post %d belongs to another user: %w", postID, ErrForbidden)
	}
	return post, nil
}

// UpdatePost replaces the post's fields and tags. Media is replaced only when
// the input carries media_urls.
func (s *PostService) UpdatePost(ctx context.Context, postID, actorID uint, in PostInput) (*models.Post, error) {
	post, err := s.authorize(ctx, postID, actorID)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	keepImage := post.ImageURL
	in.apply(post)
	if in.MediaURLs == nil && in.ImageURL == "" {
		post.ImageURL = keepImage
	}

	err = s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		if err := posts.Update(ctx, post); err != nil {
			return err
		}
		if err := s.tags.WithTx(tx).ReplaceTags(ctx, post.ID, NormalizeTags(in.Tags)); err != nil {
			return err
		}
		if in.MediaURLs != nil {
			return posts.ReplaceMedia(ctx, post.ID, *in.MediaURLs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	s.invalidatePost(ctx, post.ID)
	s.log.Info("post updated", zap.Uint("post_id", post.ID), zap.Uint("user_id", actorID))
	return post, nil
}

// DeletePost removes the post with all its dependents.
func (s *PostService) DeletePost(ctx context.Context, postID, actorID uint) error {
	if _, err := s.authorize(ctx, postID, actorID); err != nil {
		return err
	}

	err := s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		return s.posts.WithTx(tx).Delete(ctx, postID)
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.invalidatePost(ctx, postID)
	s.log.Info("post deleted", zap.Uint("post_id", postID), zap.Uint("user_id", actorID))
	return nil
}

// ToggleLike likes the post when the viewer has not, and unlikes it otherwise.
func (s *PostService) ToggleLike(ctx context.Context, postID, viewerID uint) (models.LikeResult, error) {
	exists, err := s.posts.Exists(ctx, postID)
	if err != nil {
		return models.LikeResult{}, fmt.Errorf("find post: %w", err)
	}
	if !exists {
		return models.LikeResult{}, notFound("post")
	}

	result, err := s.posts.ToggleLike(ctx, postID, viewerID)
	if err != nil {
		return models.LikeResult{}, fmt.Errorf("toggle like: %w", err)
	}

	s.cache.invalidate(ctx, nil, feedPrefix, postPrefix(postID))
	return result, nil
}

// invalidatePost drops everything a post write can make stale.
func (s *PostService) invalidatePost(ctx context.Context, postID uint) {
	s.cache.invalidate(ctx, []string{tagsKey, sitemapKey}, feedPrefix, postPrefix(postID))
}
