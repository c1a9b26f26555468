package models

import "time"

// Image is an uploaded picture, addressed by the sha256 of its bytes.
type Image struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Hash      string    `gorm:"uniqueIndex;size:64;not null" json:"id"`
	UserID    uint      `gorm:"index" json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	MimeType  string    `gorm:"size:32" json:"mime"`
	SizeBytes int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
