// File: /models/webmention.go
package models

import (
	"time"
)

type Webmention struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PostID      uint      `json:"post_id" gorm:"not null;index"`
	SourceURL   string    `json:"source_url" gorm:"not null;size:768;uniqueIndex:idx_webmention_pair,priority:1"`
	TargetURL   string    `json:"target_url" gorm:"not null;size:768;uniqueIndex:idx_webmention_pair,priority:2"`
	MentionType string    `json:"mention_type" gorm:"not null;size:30;default:'mention'"`
	AuthorName  string    `json:"author_name" gorm:"size:255"`
	AuthorURL   string    `json:"author_url" gorm:"size:2048"`
	AuthorPhoto string    `json:"author_photo" gorm:"size:2048"`
	Content     string    `json:"content" gorm:"type:text"`
	Verified    bool      `json:"verified" gorm:"not null;default:false"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mention types accepted from senders; anything else is stored as "mention".
var MentionTypes = map[string]bool{
	"mention":  true,
	"reply":    true,
	"like":     true,
	"repost":   true,
	"bookmark": true,
}
