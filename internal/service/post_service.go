// Package service holds the business rules that sit between HTTP handlers and repositories.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"vibely/internal/cache"
	"vibely/internal/featureflags"
	"vibely/internal/middleware"
	"vibely/internal/models"
	"vibely/internal/observability"
	"vibely/internal/repository"
	"vibely/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultFeedLimit is the page size used when the request gives none.
	DefaultFeedLimit = 5
	// MaxFeedLimit caps the page size a client may request.
	MaxFeedLimit = 50
)

type PostService struct {
	postRepo     repository.PostRepository
	flags        *featureflags.Manager
	defaultLimit int
}

type CreatePostInput struct {
	UserID   uint
	Content  string
	ImageURL string
	IsPublic *bool
}

type FeedInput struct {
	Cursor        string
	Limit         int
	CurrentUserID uint
}

// FeedPage is one page of the public feed. NextCursor is nil on the last page.
type FeedPage struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor *string        `json:"nextCursor"`
	HasMore    bool           `json:"hasMore"`
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// SetLikeInput changes the caller's like on a post. A nil Liked toggles.
type SetLikeInput struct {
	UserID uint
	PostID uint
	Liked  *bool
}

func NewPostService(postRepo repository.PostRepository, flags *featureflags.Manager, defaultLimit int) *PostService {
	if defaultLimit <= 0 || defaultLimit > MaxFeedLimit {
		defaultLimit = DefaultFeedLimit
	}
	return &PostService{
		postRepo:     postRepo,
		flags:        flags,
		defaultLimit: defaultLimit,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	imageURL := strings.TrimSpace(in.ImageURL)
	if err := validation.CanPost(in.Content, imageURL != ""); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	post := &models.Post{
		Content:  strings.TrimSpace(in.Content),
		ImageURL: imageURL,
		IsPublic: isPublic,
		UserID:   in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

func (s *PostService) GetPost(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id, currentUserID)
	if err != nil {
		return nil, err
	}
	if !post.IsPublic && post.UserID != currentUserID {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// Feed returns one page of public posts, newest first. The first page is served
// from the cache when the feed_cache flag is on; the caller's liked state is
// always recomputed.
func (s *PostService) Feed(ctx context.Context, in FeedInput) (page *FeedPage, err error) {
	ctx, span := observability.StartSpan(ctx, "PostService.Feed",
		attribute.Bool("feed.first_page", strings.TrimSpace(in.Cursor) == ""),
		attribute.Int("feed.limit", in.Limit),
	)
	defer func() {
		if page != nil {
			span.SetAttributes(attribute.Int("feed.posts", len(page.Posts)))
		}
		observability.EndSpan(span, err)
	}()
	return s.feed(ctx, in)
}

func (s *PostService) feed(ctx context.Context, in FeedInput) (*FeedPage, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	after, err := DecodeFeedCursor(in.Cursor)
	if err != nil {
		return nil, err
	}

	if after != nil || !s.flags.Enabled(featureflags.FeedCache, in.CurrentUserID) {
		return s.fetchFeedPage(ctx, after, limit, in.CurrentUserID)
	}

	var page FeedPage
	key := cache.FeedFirstPageKey(ctx, limit)
	err = cache.Aside(ctx, key, &page, cache.FeedTTL, func() error {
		fetched, fetchErr := s.fetchFeedPage(ctx, nil, limit, 0)
		if fetchErr != nil {
			return fetchErr
		}
		page = *fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.CurrentUserID != 0 && len(page.Posts) > 0 {
		postIDs := make([]uint, len(page.Posts))
		for i, p := range page.Posts {
			postIDs[i] = p.ID
		}
		likedIDs, err := s.postRepo.GetLikedPostIDs(ctx, in.CurrentUserID, postIDs)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "liked state lookup failed for cached feed", "user_id", in.CurrentUserID, "error", err)
			return nil, err
		}
		likedMap := make(map[uint]bool, len(likedIDs))
		for _, id := range likedIDs {
			likedMap[id] = true
		}
		for _, p := range page.Posts {
			p.Liked = likedMap[p.ID]
		}
	}
	return &page, nil
}

func (s *PostService) fetchFeedPage(ctx context.Context, after *repository.FeedCursor, limit int, currentUserID uint) (*FeedPage, error) {
	posts, err := s.postRepo.Feed(ctx, after, limit+1, currentUserID)
	if err != nil {
		return nil, err
	}
	page := &FeedPage{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.HasMore = true
		last := page.Posts[limit-1]
		next := EncodeFeedCursor(repository.FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	if page.Posts == nil {
		page.Posts = []*models.Post{}
	}
	return page, nil
}

type feedCursorPayload struct {
	T time.Time `json:"t"`
	ID uint     `json:"id"`
}

// EncodeFeedCursor serializes a feed position into an opaque URL-safe token.
func EncodeFeedCursor(c repository.FeedCursor) string {
	raw, _ := json.Marshal(feedCursorPayload{T: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeFeedCursor parses a token produced by EncodeFeedCursor. An empty token
// means "start from the newest post" and yields nil.
func DecodeFeedCursor(token string) (*repository.FeedCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, models.NewValidationError("Invalid cursor")
	}
	var p feedCursorPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == 0 || p.T.IsZero() {
		return nil, models.NewValidationError("Invalid cursor")
	}
	return &repository.FeedCursor{CreatedAt: p.T, ID: p.ID}, nil
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return err
	}
	if post.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	return s.postRepo.Delete(ctx, in.PostID)
}

// SetLike records the caller's like state and returns the updated post.
// Setting a state the post is already in is a no-op.
func (s *PostService) SetLike(ctx context.Context, in SetLikeInput) (*models.Post, error) {
	post, err := s.GetPost(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}

	want := !post.Liked
	if in.Liked != nil {
		want = *in.Liked
	}

	if want != post.Liked {
		if want {
			err = s.postRepo.Like(ctx, in.UserID, in.PostID)
		} else {
			err = s.postRepo.Unlike(ctx, in.UserID, in.PostID)
		}
		if err != nil {
			return nil, err
		}
		if post.IsPublic {
			cache.InvalidateFeed(ctx)
		}
	}

	return s.postRepo.GetByID(ctx, in.PostID, in.UserID)
}
