package service

import (
	"context"
	"strings"
	"testing"

	"vibely/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn     func(context.Context, *models.Comment) error
	getByIDFn    func(context.Context, uint) (*models.Comment, error)
	listByPostFn func(context.Context, uint) ([]*models.Comment, error)
	deleteTreeFn func(context.Context, uint) error
	isLikedFn    func(context.Context, uint, uint) (bool, error)
	likeFn       func(context.Context, uint, uint) error
	unlikeFn     func(context.Context, uint, uint) error
}

func (s *commentRepoStub) Create(ctx context.Context, comment *models.Comment) error {
	return s.createFn(ctx, comment)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	return s.listByPostFn(ctx, postID)
}
func (s *commentRepoStub) DeleteTree(ctx context.Context, id uint) error {
	return s.deleteTreeFn(ctx, id)
}
func (s *commentRepoStub) IsLiked(ctx context.Context, userID, commentID uint) (bool, error) {
	return s.isLikedFn(ctx, userID, commentID)
}
func (s *commentRepoStub) Like(ctx context.Context, userID, commentID uint) error {
	return s.likeFn(ctx, userID, commentID)
}
func (s *commentRepoStub) Unlike(ctx context.Context, userID, commentID uint) error {
	return s.unlikeFn(ctx, userID, commentID)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:     func(_ context.Context, _ *models.Comment) error { return nil },
		getByIDFn:    func(_ context.Context, id uint) (*models.Comment, error) { return &models.Comment{ID: id, PostID: 1}, nil },
		listByPostFn: func(_ context.Context, _ uint) ([]*models.Comment, error) { return nil, nil },
		deleteTreeFn: func(_ context.Context, _ uint) error { return nil },
		isLikedFn:    func(_ context.Context, _, _ uint) (bool, error) { return false, nil },
		likeFn:       func(_ context.Context, _, _ uint) error { return nil },
		unlikeFn:     func(_ context.Context, _, _ uint) error { return nil },
	}
}

// chainRepo stores comments 1..depth+1 where comment n+1 replies to n.
func chainRepo(depth int) *commentRepoStub {
	repo := noopCommentRepo()
	byID := map[uint]*models.Comment{}
	for i := 1; i <= depth+1; i++ {
		c := &models.Comment{ID: uint(i), PostID: 1}
		if i > 1 {
			parent := uint(i - 1)
			c.ParentID = &parent
		}
		byID[c.ID] = c
	}
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
		if c, ok := byID[id]; ok {
			return c, nil
		}
		return nil, models.NewNotFoundError("Comment", id)
	}
	repo.createFn = func(_ context.Context, c *models.Comment) error {
		c.ID = uint(len(byID) + 1)
		byID[c.ID] = c
		return nil
	}
	return repo
}

func TestCommentService_CreateComment_Validation(t *testing.T) {
	t.Parallel()

	svc := NewCommentService(noopCommentRepo(), noopPostRepo())
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()
		_, err := svc.CreateComment(ctx, CreateCommentInput{UserID: 1, PostID: 1, Content: "  "})
		assertValidationError(t, err)
	})

	t.Run("too long", func(t *testing.T) {
		t.Parallel()
		_, err := svc.CreateComment(ctx, CreateCommentInput{UserID: 1, PostID: 1, Content: strings.Repeat("x", 381)})
		assertValidationError(t, err)
	})
}

func TestCommentService_CreateComment_Depth(t *testing.T) {
	ctx := context.Background()

	// comment 6 sits at depth 5, so replying to comment 5 (depth 4) is allowed
	svc := NewCommentService(chainRepo(models.MaxCommentDepth), noopPostRepo())
	parent := uint(models.MaxCommentDepth)
	_, err := svc.CreateComment(ctx, CreateCommentInput{UserID: 1, PostID: 1, ParentID: &parent, Content: "ok"})
	assert.NoError(t, err)

	tooDeep := uint(models.MaxCommentDepth + 1)
	_, err = svc.CreateComment(ctx, CreateCommentInput{UserID: 1, PostID: 1, ParentID: &tooDeep, Content: "no"})
	assertValidationError(t, err)
}

func TestCommentService_CreateComment_ParentOnOtherPost(t *testing.T) {
	svc := NewCommentService(chainRepo(1), noopPostRepo())
	parent := uint(1)
	_, err := svc.CreateComment(context.Background(), CreateCommentInput{UserID: 1, PostID: 2, ParentID: &parent, Content: "hi"})
	assertValidationError(t, err)
}

func TestBuildCommentTree(t *testing.T) {
	one, two := uint(1), uint(2)
	flat := []*models.Comment{
		{ID: 1},
		{ID: 2, ParentID: &one},
		{ID: 3},
		{ID: 4, ParentID: &two},
		{ID: 5, ParentID: &one},
	}
	tree := BuildCommentTree(flat)
	require.Len(t, tree, 2)
	assert.Equal(t, uint(1), tree[0].ID)
	assert.Equal(t, uint(3), tree[1].ID)
	require.Len(t, tree[0].Replies, 2)
	assert.Equal(t, uint(2), tree[0].Replies[0].ID)
	assert.Equal(t, uint(5), tree[0].Replies[1].ID)
	require.Len(t, tree[0].Replies[0].Replies, 1)
	assert.Equal(t, uint(4), tree[0].Replies[0].Replies[0].ID)
}

func TestCommentService_DeleteComment_Permissions(t *testing.T) {
	ctx := context.Background()
	comments := noopCommentRepo()
	comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
		return &models.Comment{ID: id, PostID: 1, UserID: 10}, nil
	}
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 20}, nil
	}
	svc := NewCommentService(comments, posts)

	assert.NoError(t, svc.DeleteComment(ctx, DeleteCommentInput{UserID: 10, PostID: 1, CommentID: 5}))
	assert.NoError(t, svc.DeleteComment(ctx, DeleteCommentInput{UserID: 20, PostID: 1, CommentID: 5}))

	err := svc.DeleteComment(ctx, DeleteCommentInput{UserID: 30, PostID: 1, CommentID: 5})
	assertAppError(t, err, models.CodeForbidden)

	err = svc.DeleteComment(ctx, DeleteCommentInput{UserID: 10, PostID: 2, CommentID: 5})
	assertAppError(t, err, models.CodeNotFound)
}

func TestCommentService_ToggleCommentLike(t *testing.T) {
	liked := false
	repo := noopCommentRepo()
	repo.isLikedFn = func(context.Context, uint, uint) (bool, error) { return liked, nil }
	repo.likeFn = func(context.Context, uint, uint) error { liked = true; return nil }
	repo.unlikeFn = func(context.Context, uint, uint) error { liked = false; return nil }
	svc := NewCommentService(repo, noopPostRepo())
	ctx := context.Background()

	got, err := svc.ToggleCommentLike(ctx, ToggleCommentLikeInput{UserID: 1, PostID: 1, CommentID: 2})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = svc.ToggleCommentLike(ctx, ToggleCommentLikeInput{UserID: 1, PostID: 1, CommentID: 2})
	require.NoError(t, err)
	assert.False(t, got)
}
