package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxPostLength is the longest post or comment body, counted in characters.
const MaxPostLength = 380

// Post is a feed item.
type Post struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Content  string `gorm:"type:text;not null" json:"content"`
	ImageURL string `json:"image,omitempty"`
	IsPublic bool   `gorm:"index" json:"isPublic"`
	UserID   uint   `gorm:"not null;index" json:"userId"`
	User     *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// Likes holds the ids of users who liked the post.
	Likes         []uint `gorm:"-" json:"likes"`
	LikesCount    int    `gorm:"->" json:"likesCount"`
	CommentsCount int    `gorm:"->" json:"commentsCount"`
	Liked         bool   `gorm:"->" json:"liked"`

	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Like records one user's like on a post.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_like_user_post" json:"userId"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_like_user_post;index" json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}
