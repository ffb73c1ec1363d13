// File: /models/post.go
package models

import (
	"time"
)

type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypePhoto PostType = "photo"
	PostTypeVideo PostType = "video"
	PostTypeAudio PostType = "audio"
	PostTypeQuote PostType = "quote"
	PostTypeLink  PostType = "link"
)

// PostTypes lists every accepted post type.
var PostTypes = []PostType{PostTypeText, PostTypePhoto, PostTypeVideo, PostTypeAudio, PostTypeQuote, PostTypeLink}

func (t PostType) Valid() bool {
	for _, pt := range PostTypes {
		if t == pt {
			return true
		}
	}
	return false
}

type Post struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"not null;index"`
	Type        PostType  `json:"type" gorm:"not null;size:20;default:'text'"`
	Title       string    `json:"title" gorm:"size:255"`
	Content     string    `json:"content" gorm:"type:text"`
	LinkURL     string    `json:"link_url" gorm:"size:2048"`
	Attribution string    `json:"attribution" gorm:"size:255"`
	License     string    `json:"license" gorm:"size:255"`
	ImageURL    string    `json:"image_url" gorm:"size:2048"`
	CategoryID  *uint     `json:"category_id" gorm:"index"`
	ViewCount   int64     `json:"view_count" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PostLike existence means "liked"; the pair is the primary key.
type PostLike struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	PostID    uint      `json:"post_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
}

// PostView is the dedup ledger for view_count increments.
type PostView struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	PostID    uint      `json:"post_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

type PostMedia struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	PostID   uint   `json:"post_id" gorm:"not null;index:idx_post_media_order,priority:1"`
	URL      string `json:"url" gorm:"not null;size:2048"`
	Position int    `json:"position" gorm:"not null;default:0;index:idx_post_media_order,priority:2"`
}

func (PostMedia) TableName() string {
	return "post_media"
}

// PostDetail is a post annotated with its author, category, likes, tags and media.
type PostDetail struct {
	Post
	Username     string   `json:"username"`
	CategoryName *string  `json:"category_name"`
	CategorySlug *string  `json:"category_slug"`
	LikeCount    int64    `json:"like_count"`
	LikedByUser  bool     `json:"liked_by_user"`
	Tags         []string `json:"tags"`
	MediaURLs    []string `json:"media_urls"`
}

// FeedResponse is one page of the post feed
type FeedResponse struct {
	Posts      []PostDetail `json:"posts"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPosts int64        `json:"total_posts"`
	HasMore    bool         `json:"has_more"`
}

// CategoryFeedResponse adds the resolved category to a feed page.
type CategoryFeedResponse struct {
	FeedResponse
	CategoryName string `json:"category_name"`
	CategorySlug string `json:"category_slug"`
}

// LikeResult is returned by the like toggle.
type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}
