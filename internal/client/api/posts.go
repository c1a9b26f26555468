package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"vibely/internal/validation"
)

// DefaultFeedLimit is the page size FeedInitial asks for.
const DefaultFeedLimit = 25

// PostsAPI wraps /posts.
type PostsAPI struct {
	c *Client
}

// Create publishes a post. isPublic nil leaves the server default (public).
func (p *PostsAPI) Create(ctx context.Context, content, image string, isPublic *bool) (*Post, error) {
	if err := validation.CanPost(content, image != ""); err != nil {
		return nil, validationError(err)
	}
	body := struct {
		Content  string `json:"content"`
		Image    string `json:"image,omitempty"`
		IsPublic *bool  `json:"isPublic,omitempty"`
	}{content, image, isPublic}

	var out Post
	if err := p.c.do(ctx, http.MethodPost, "posts", nil, body, &out, "Server error occurred"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Feed fetches one page starting after cursor ("" for the first page). When the
// server omits hasMore, a full page is taken to mean more may follow.
func (p *PostsAPI) Feed(ctx context.Context, cursor string, limit int) (*FeedPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var raw struct {
		Posts      []*Post `json:"posts"`
		NextCursor *string `json:"nextCursor"`
		HasMore    *bool   `json:"hasMore"`
		Success    bool    `json:"success"`
	}
	if err := p.c.do(ctx, http.MethodGet, "posts/feed", query, nil, &raw, "Failed to load feed"); err != nil {
		return nil, err
	}

	page := &FeedPage{Posts: raw.Posts, NextCursor: raw.NextCursor, Success: raw.Success}
	if page.Posts == nil {
		page.Posts = []*Post{}
	}
	if page.NextCursor != nil && *page.NextCursor == "" {
		page.NextCursor = nil
	}
	if raw.HasMore != nil {
		page.HasMore = *raw.HasMore
	} else {
		page.HasMore = limit > 0 && len(page.Posts) == limit
	}
	return page, nil
}

// FeedInitial loads the first page with the default page size.
func (p *PostsAPI) FeedInitial(ctx context.Context) (*FeedPage, error) {
	return p.Feed(ctx, "", DefaultFeedLimit)
}

// Get loads one post.
func (p *PostsAPI) Get(ctx context.Context, id uint) (*Post, error) {
	var out Post
	if err := p.c.do(ctx, http.MethodGet, "posts/"+idPath(id), nil, nil, &out, "Failed to load post"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one of the caller's posts.
func (p *PostsAPI) Delete(ctx context.Context, id uint) error {
	return p.c.do(ctx, http.MethodDelete, "posts/"+idPath(id), nil, nil, nil, "Failed to delete post")
}

func idPath(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
