package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix = "user:%d"
	PostKeyPrefix = "post:%d"
	// FeedKeyPrefix is formatted with the feed generation and page size.
	FeedKeyPrefix = "feed:v%d:first:%d"
	feedGenKey    = "feed:gen"
)

const (
	UserTTL = 5 * time.Minute
	PostTTL = 30 * time.Minute
	FeedTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// FeedFirstPageKey returns the key of the cached first feed page for the current
// feed generation. Bumping the generation orphans every older page at once.
func FeedFirstPageKey(ctx context.Context, limit int) string {
	var gen int64
	if client != nil {
		if v, err := client.Get(ctx, feedGenKey).Int64(); err == nil {
			gen = v
		}
	}
	return fmt.Sprintf(FeedKeyPrefix, gen, limit)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

// InvalidateFeed retires all cached feed pages.
func InvalidateFeed(ctx context.Context) {
	if client != nil {
		client.Incr(ctx, feedGenKey)
	}
}
