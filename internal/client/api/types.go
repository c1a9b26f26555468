package api

import "time"

// User mirrors the server's public user shape.
type User struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post is a feed item. Likes holds the ids of users who liked it.
type Post struct {
	ID            uint      `json:"id"`
	Content       string    `json:"content"`
	Image         string    `json:"image,omitempty"`
	IsPublic      bool      `json:"isPublic"`
	UserID        uint      `json:"userId"`
	User          *User     `json:"user,omitempty"`
	Likes         []uint    `json:"likes"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	Liked         bool      `json:"liked"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Comment is a reply to a post; Replies nest below it.
type Comment struct {
	ID        uint       `json:"id"`
	Content   string     `json:"content"`
	Image     string     `json:"image,omitempty"`
	UserID    uint       `json:"userId"`
	User      *User      `json:"user,omitempty"`
	PostID    uint       `json:"postId"`
	ParentID  *uint      `json:"parentId,omitempty"`
	Likes     []uint     `json:"likes"`
	Replies   []*Comment `json:"replies,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Message is one chat record. Key is the push key it is stored under; it is
// carried by the snapshot map, not the record itself.
type Message struct {
	Key       string `json:"-"`
	Seq       int64  `json:"seq"`
	Text      string `json:"text"`
	UserID    uint   `json:"userId"`
	UserEmail string `json:"userEmail"`
	// CreatedAt is the sender's clock in unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Time returns CreatedAt as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// Snapshot is the full state of a conversation keyed by push key.
type Snapshot struct {
	Key      string              `json:"key"`
	Messages map[string]*Message `json:"messages"`
}

// Thread is an inbox entry.
type Thread struct {
	Key           string    `json:"key"`
	LastMessage   string    `json:"lastMessage"`
	LastSenderID  uint      `json:"lastSenderId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Participant   *User     `json:"participant,omitempty"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// FeedPage is one page of the public feed.
type FeedPage struct {
	Posts      []*Post `json:"posts"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
	Success    bool    `json:"success"`
}

// LikeResult is the post's like state after a like call.
type LikeResult struct {
	Liked      bool   `json:"liked"`
	Likes      []uint `json:"likes"`
	LikesCount int    `json:"likesCount"`
}
