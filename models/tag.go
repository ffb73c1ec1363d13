// File: /models/tag.go
package models

// Tag names are stored trimmed and lower-cased.
type Tag struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null;size:100"`
}

type PostTag struct {
	PostID uint `json:"post_id" gorm:"primaryKey;autoIncrement:false"`
	TagID  uint `json:"tag_id" gorm:"primaryKey;autoIncrement:false"`
}

// TagWithCount is a tag with the number of posts linked to it.
type TagWithCount struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	PostCount int64  `json:"post_count"`
}
