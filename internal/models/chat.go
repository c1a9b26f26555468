package models

import "time"

// ChatMessage is one record appended under a conversation key.
//
// CreatedAtMs is stamped by the sending client and drives display order.
// Seq is assigned by the server per conversation and only breaks ties.
type ChatMessage struct {
	PushKey         string    `gorm:"primaryKey;size:36" json:"-"`
	ConversationKey string    `gorm:"size:64;not null;index:idx_chat_key_seq,priority:1" json:"-"`
	Seq             int64     `gorm:"not null;index:idx_chat_key_seq,priority:2" json:"seq"`
	Text            string    `gorm:"type:text;not null" json:"text"`
	UserID          uint      `gorm:"not null" json:"userId"`
	UserEmail       string    `json:"userEmail"`
	CreatedAtMs     int64     `gorm:"column:created_at_ms;not null" json:"createdAt"`
	ReceivedAt      time.Time `gorm:"autoCreateTime" json:"-"`
}

// ChatThread is the inbox row for a conversation between two users.
type ChatThread struct {
	Key           string    `gorm:"primaryKey;size:64" json:"key"`
	UserAID       uint      `gorm:"not null;index" json:"-"`
	UserBID       uint      `gorm:"not null;index" json:"-"`
	LastMessage   string    `gorm:"type:text" json:"lastMessage"`
	LastSenderID  uint      `json:"lastSenderId"`
	LastMessageAt time.Time `gorm:"index" json:"lastMessageAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// Participant is the other user from the viewer's point of view.
	Participant *User `gorm:"-" json:"participant,omitempty"`
}
