// File: /models/comment.go
package models

import (
	"time"
)

type Comment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PostID    uint      `json:"post_id" gorm:"not null;index"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentWithAuthor is a comment joined with the author's username.
type CommentWithAuthor struct {
	Comment
	Username string `json:"username"`
}
