// Package models defines the persisted entities and API error types.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account. Username is the public handle, unique and lowercase.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:20;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Name      string         `gorm:"size:50" json:"name"`
	Avatar    string         `json:"avatar,omitempty"`
	Bio       string         `gorm:"type:text" json:"bio,omitempty"`
	Verified  bool           `gorm:"default:false" json:"verified"`
	Password  string         `gorm:"not null" json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
