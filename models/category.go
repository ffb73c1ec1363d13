// File: /models/category.go
package models

type Category struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null;size:100"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null;size:100"`
	Description string `json:"description" gorm:"size:500"`
}
