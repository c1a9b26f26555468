package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxCommentDepth bounds how deeply replies may nest below a top-level comment.
const MaxCommentDepth = 5

// Comment is a reply to a post, optionally nested under another comment.
type Comment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Content  string `gorm:"type:text;not null" json:"content"`
	ImageURL string `json:"image,omitempty"`
	UserID   uint   `gorm:"not null;index" json:"userId"`
	User     *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PostID   uint   `gorm:"not null;index" json:"postId"`
	ParentID *uint  `gorm:"index" json:"parentId,omitempty"`

	Likes   []uint     `gorm:"-" json:"likes"`
	Replies []*Comment `gorm:"-" json:"replies,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CommentLike records one user's like on a comment.
type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_like_user" json:"userId"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_like_user;index" json:"commentId"`
	CreatedAt time.Time `json:"createdAt"`
}
