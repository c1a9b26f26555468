package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"vibely/internal/config"
	"vibely/internal/models"
	"vibely/internal/repository"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPostRepository is a mock of the PostRepository interface
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	args := m.Called(ctx, id, currentUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostRepository) Feed(ctx context.Context, after *repository.FeedCursor, limit int, currentUserID uint) ([]*models.Post, error) {
	args := m.Called(ctx, after, limit, currentUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Post), args.Error(1)
}

func (m *MockPostRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPostRepository) IsLiked(ctx context.Context, userID, postID uint) (bool, error) {
	args := m.Called(ctx, userID, postID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPostRepository) GetLikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	args := m.Called(ctx, userID, postIDs)
	return args.Get(0).([]uint), args.Error(1)
}

func (m *MockPostRepository) GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error) {
	args := m.Called(ctx, postIDs)
	return args.Get(0).(map[uint][]uint), args.Error(1)
}

func (m *MockPostRepository) Like(ctx context.Context, userID, postID uint) error {
	args := m.Called(ctx, userID, postID)
	return args.Error(0)
}

func (m *MockPostRepository) Unlike(ctx context.Context, userID, postID uint) error {
	args := m.Called(ctx, userID, postID)
	return args.Error(0)
}

func newMockPostServer(repo *MockPostRepository) *fiber.App {
	s := &Server{
		config:      &config.Config{JWTSecret: "test-secret"},
		postRepo:    repo,
		postService: service.NewPostService(repo, nil, 5),
	}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return c.Next()
	})
	app.Post("/posts", s.CreatePost)
	app.Get("/posts/feed", s.GetFeed)
	app.Delete("/posts/:id", s.DeletePost)
	app.Post("/posts/:id/like", s.LikePost)
	return app
}

func TestCreatePost(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := new(MockPostRepository)
		app := newMockPostServer(repo)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Post) bool {
			return p.Content == "hello" && p.UserID == 1 && p.IsPublic
		})).Return(nil).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Post).ID = 10
		})
		repo.On("GetByID", mock.Anything, uint(10), uint(1)).
			Return(&models.Post{ID: 10, Content: "hello", UserID: 1, IsPublic: true, Likes: []uint{}}, nil)

		resp, body := doJSON(t, app, http.MethodPost, "/posts", "", map[string]any{"content": "hello"})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, float64(10), body["id"])
		repo.AssertExpectations(t)
	})

	t.Run("380 characters accepted, 381 rejected", func(t *testing.T) {
		repo := new(MockPostRepository)
		app := newMockPostServer(repo)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(&models.Post{ID: 1}, nil)

		resp, _ := doJSON(t, app, http.MethodPost, "/posts", "", map[string]any{"content": strings.Repeat("é", 380)})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, body := doJSON(t, app, http.MethodPost, "/posts", "", map[string]any{"content": strings.Repeat("é", 381)})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, models.CodeValidation, body["code"])
		repo.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("blank without image rejected", func(t *testing.T) {
		repo := new(MockPostRepository)
		app := newMockPostServer(repo)

		resp, _ := doJSON(t, app, http.MethodPost, "/posts", "", map[string]any{"content": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestGetFeed_InvalidCursor(t *testing.T) {
	repo := new(MockPostRepository)
	app := newMockPostServer(repo)

	resp, body := doJSON(t, app, http.MethodGet, "/posts/feed?cursor=%21%21%21", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid cursor", body["message"])
	repo.AssertNotCalled(t, "Feed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeletePost_NotAuthor(t *testing.T) {
	repo := new(MockPostRepository)
	app := newMockPostServer(repo)
	repo.On("GetByID", mock.Anything, uint(5), uint(1)).Return(&models.Post{ID: 5, UserID: 2, IsPublic: true}, nil)

	resp, body := doJSON(t, app, http.MethodDelete, "/posts/5", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, body["code"])
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestLikePost_InvalidID(t *testing.T) {
	repo := new(MockPostRepository)
	app := newMockPostServer(repo)

	resp, body := doJSON(t, app, http.MethodPost, "/posts/abc/like", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid ID", body["message"])
}

func TestFeedPagination(t *testing.T) {
	_, app, _ := newTestServer(t, true)
	token, _ := signup(t, app, "writer")

	for i := 0; i < 7; i++ {
		resp, body := doJSON(t, app, http.MethodPost, "/api/posts", token, map[string]any{
			"content": fmt.Sprintf("post %d", i),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}
	private := false
	resp, _ := doJSON(t, app, http.MethodPost, "/api/posts", token, map[string]any{
		"content": "secret", "isPublic": private,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, first := doJSON(t, app, http.MethodGet, "/api/posts/feed", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, first["success"])
	assert.Equal(t, true, first["hasMore"])
	assert.Len(t, first["posts"], 5)
	cursor, ok := first["nextCursor"].(string)
	require.True(t, ok)

	resp, second := doJSON(t, app, http.MethodGet, "/api/posts/feed?cursor="+cursor, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, second["hasMore"])
	assert.Nil(t, second["nextCursor"])
	assert.Len(t, second["posts"], 2)

	seen := map[float64]bool{}
	for _, page := range []map[string]any{first, second} {
		for _, p := range page["posts"].([]any) {
			post := p.(map[string]any)
			assert.NotEqual(t, "secret", post["content"])
			assert.False(t, seen[post["id"].(float64)], "post repeated across pages")
			seen[post["id"].(float64)] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestFeedLimitCapped(t *testing.T) {
	_, app, _ := newTestServer(t, false)
	resp, body := doJSON(t, app, http.MethodGet, "/api/posts/feed?limit=500", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["hasMore"])
	assert.Empty(t, body["posts"])
}

func TestGetPost_PrivateHiddenFromOthers(t *testing.T) {
	_, app, _ := newTestServer(t, false)
	owner, _ := signup(t, app, "owner")
	other, _ := signup(t, app, "other")

	resp, body := doJSON(t, app, http.MethodPost, "/api/posts", owner, map[string]any{
		"content": "just me", "isPublic": false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	path := fmt.Sprintf("/api/posts/%d", int(body["id"].(float64)))

	resp, _ = doJSON(t, app, http.MethodGet, path, owner, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePost_Author(t *testing.T) {
	_, app, _ := newTestServer(t, true)
	token, _ := signup(t, app, "deleter")

	resp, body := doJSON(t, app, http.MethodPost, "/api/posts", token, map[string]any{"content": "bye"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	path := fmt.Sprintf("/api/posts/%d", int(body["id"].(float64)))

	resp, _ = doJSON(t, app, http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
