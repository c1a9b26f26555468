package service

import (
	"context"
	"strings"

	"vibely/internal/models"
	"vibely/internal/observability"
	"vibely/internal/repository"
	"vibely/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
}

type CreateCommentInput struct {
	UserID   uint
	PostID   uint
	ParentID *uint
	Content  string
	ImageURL string
}

type DeleteCommentInput struct {
	UserID    uint
	PostID    uint
	CommentID uint
}

type ToggleCommentLikeInput struct {
	UserID    uint
	PostID    uint
	CommentID uint
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (c *models.Comment, err error) {
	ctx, span := observability.StartSpan(ctx, "CommentService.CreateComment",
		attribute.Int64("post.id", int64(in.PostID)),
		attribute.Bool("comment.reply", in.ParentID != nil),
	)
	defer func() { observability.EndSpan(span, err) }()
	return s.createComment(ctx, in)
}

func (s *CommentService) createComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if err := validation.ValidateComment(content); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.postRepo.GetByID(ctx, in.PostID, 0); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		depth, err := s.depthOf(ctx, *in.ParentID, in.PostID)
		if err != nil {
			return nil, err
		}
		if depth+1 > models.MaxCommentDepth {
			return nil, models.NewValidationError("Replies cannot be nested any deeper")
		}
	}

	comment := &models.Comment{
		Content:  content,
		ImageURL: strings.TrimSpace(in.ImageURL),
		UserID:   in.UserID,
		PostID:   in.PostID,
		ParentID: in.ParentID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	created, err := s.commentRepo.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	created.Likes = []uint{}
	return created, nil
}

// depthOf returns how far commentID sits below the top level (top-level is 0).
func (s *CommentService) depthOf(ctx context.Context, commentID, postID uint) (int, error) {
	depth := 0
	id := commentID
	for {
		c, err := s.commentRepo.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if c.PostID != postID {
			return 0, models.NewValidationError("Parent comment belongs to another post")
		}
		if c.ParentID == nil {
			return depth, nil
		}
		depth++
		if depth > models.MaxCommentDepth {
			return depth, nil
		}
		id = *c.ParentID
	}
}

// ListComments returns the comments of a post as a tree: top-level comments in
// creation order, each with its replies nested beneath it.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID, 0); err != nil {
		return nil, err
	}
	flat, err := s.commentRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return BuildCommentTree(flat), nil
}

// BuildCommentTree nests a flat, creation-ordered comment list by ParentID.
// Replies whose parent is missing are dropped.
func BuildCommentTree(flat []*models.Comment) []*models.Comment {
	byID := make(map[uint]*models.Comment, len(flat))
	for _, c := range flat {
		c.Replies = nil
		byID[c.ID] = c
	}
	roots := make([]*models.Comment, 0)
	for _, c := range flat {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		if parent, ok := byID[*c.ParentID]; ok {
			parent.Replies = append(parent.Replies, c)
		}
	}
	return roots
}

// DeleteComment removes a comment and its replies. The comment's author and the
// post's author may delete it.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return err
	}
	if comment.PostID != in.PostID {
		return models.NewNotFoundError("Comment", in.CommentID)
	}

	if comment.UserID != in.UserID {
		post, err := s.postRepo.GetByID(ctx, in.PostID, 0)
		if err != nil {
			return err
		}
		if post.UserID != in.UserID {
			return models.NewForbiddenError("You can only delete your own comments")
		}
	}

	return s.commentRepo.DeleteTree(ctx, in.CommentID)
}

// ToggleCommentLike flips the caller's like on a comment and reports the new state.
func (s *CommentService) ToggleCommentLike(ctx context.Context, in ToggleCommentLikeInput) (bool, error) {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return false, err
	}
	if comment.PostID != in.PostID {
		return false, models.NewNotFoundError("Comment", in.CommentID)
	}

	liked, err := s.commentRepo.IsLiked(ctx, in.UserID, in.CommentID)
	if err != nil {
		return false, err
	}
	if liked {
		return false, s.commentRepo.Unlike(ctx, in.UserID, in.CommentID)
	}
	return true, s.commentRepo.Like(ctx, in.UserID, in.CommentID)
}
