// Package feed keeps the paginated feed state behind the home screen: the
// loaded posts, the cursor of the next page and the loading flags that stop
// overlapping fetches.
package feed

import (
	"context"
	"errors"
	"slices"
	"sync"

	"vibely/internal/client/api"
)

// ErrBusy is returned when a load is requested while another one runs. The
// request is dropped, not queued.
var ErrBusy = errors.New("feed: a load is already in progress")

// Fetcher loads one feed page. *api.PostsAPI implements it.
type Fetcher interface {
	Feed(ctx context.Context, cursor string, limit int) (*api.FeedPage, error)
}

// State is a copy of the feed at one point in time.
type State struct {
	Posts      []api.Post
	Cursor     *string
	HasMore    bool
	Loading    bool
	Refreshing bool
}

// Feed is safe for concurrent use.
type Feed struct {
	src   Fetcher
	limit int

	mu         sync.Mutex
	posts      []*api.Post
	index      map[uint]int
	cursor     *string
	hasMore    bool
	loading    bool
	refreshing bool
}

// New returns an empty feed that pages through src limit posts at a time.
func New(src Fetcher, limit int) *Feed {
	return &Feed{
		src:     src,
		limit:   limit,
		index:   make(map[uint]int),
		hasMore: true,
	}
}

// LoadFeed fetches a page. With isLoadMore the page after the current cursor
// is merged into the list; otherwise the first page replaces it. A load-more
// when nothing is left returns nil without a request. On failure the state is
// left as it was.
func (f *Feed) LoadFeed(ctx context.Context, isLoadMore bool) error {
	f.mu.Lock()
	if f.loading || f.refreshing {
		f.mu.Unlock()
		return ErrBusy
	}
	if isLoadMore && !f.hasMore {
		f.mu.Unlock()
		return nil
	}
	cursor := ""
	if isLoadMore && f.cursor != nil {
		cursor = *f.cursor
	}
	f.loading = true
	f.mu.Unlock()

	page, err := f.src.Feed(ctx, cursor, f.limit)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	if err != nil {
		return err
	}
	f.apply(page, isLoadMore)
	return nil
}

// Refresh is pull-to-refresh: cursor and hasMore are reset before the first
// page is fetched again, and the list becomes exactly that page. A failed
// fetch puts the previous cursor and hasMore back.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.loading || f.refreshing {
		f.mu.Unlock()
		return ErrBusy
	}
	prevCursor, prevHasMore := f.cursor, f.hasMore
	f.refreshing = true
	f.cursor = nil
	f.hasMore = true
	f.mu.Unlock()

	page, err := f.src.Feed(ctx, "", f.limit)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshing = false
	if err != nil {
		f.cursor, f.hasMore = prevCursor, prevHasMore
		return err
	}
	f.apply(page, false)
	return nil
}

// apply must be called with mu held.
func (f *Feed) apply(page *api.FeedPage, merge bool) {
	if !merge {
		f.posts = f.posts[:0]
		clear(f.index)
	}
	for _, p := range page.Posts {
		if p == nil {
			continue
		}
		// Posts repeated across pages replace the earlier copy in place.
		if i, ok := f.index[p.ID]; ok {
			f.posts[i] = p
			continue
		}
		f.index[p.ID] = len(f.posts)
		f.posts = append(f.posts, p)
	}

	f.cursor = page.NextCursor
	f.hasMore = page.HasMore
	if len(page.Posts) == 0 || f.cursor == nil {
		f.hasMore = false
	}
}

// State returns a deep enough copy that callers may not mutate the feed.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts := make([]api.Post, len(f.posts))
	for i, p := range f.posts {
		posts[i] = clonePost(p)
	}
	var cursor *string
	if f.cursor != nil {
		c := *f.cursor
		cursor = &c
	}
	return State{
		Posts:      posts,
		Cursor:     cursor,
		HasMore:    f.hasMore,
		Loading:    f.loading,
		Refreshing: f.refreshing,
	}
}

// Post returns a copy of one loaded post.
func (f *Feed) Post(id uint) (api.Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[id]
	if !ok {
		return api.Post{}, false
	}
	return clonePost(f.posts[i]), true
}

// IsLiked reports whether userID is in the post's local like list.
func (f *Feed) IsLiked(postID, userID uint) (liked, found bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[postID]
	if !ok {
		return false, false
	}
	return slices.Contains(f.posts[i].Likes, userID), true
}

// ApplyLike sets userID's membership in the local like list and moves the
// count by one when membership changes. It reports whether the post is loaded.
func (f *Feed) ApplyLike(postID, userID uint, liked bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[postID]
	if !ok {
		return false
	}
	p := f.posts[i]
	has := slices.Contains(p.Likes, userID)
	switch {
	case liked && !has:
		p.Likes = append(slices.Clone(p.Likes), userID)
		p.LikesCount++
	case !liked && has:
		p.Likes = slices.DeleteFunc(slices.Clone(p.Likes), func(id uint) bool { return id == userID })
		p.LikesCount = max(p.LikesCount-1, 0)
	}
	p.Liked = liked
	return true
}

func clonePost(p *api.Post) api.Post {
	out := *p
	out.Likes = slices.Clone(p.Likes)
	return out
}
