package repository

import (
	"context"
	"errors"

	"vibely/internal/cache"
	"vibely/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error)
	DeleteTree(ctx context.Context, id uint) error
	IsLiked(ctx context.Context, userID, commentID uint) (bool, error)
	Like(ctx context.Context, userID, commentID uint) error
	Unlike(ctx context.Context, userID, commentID uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, comment.PostID)
	cache.InvalidateFeed(ctx)
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &comment, nil
}

// ListByPost returns every comment on a post, oldest first, with like ids attached.
// The slice is flat; callers nest it by ParentID.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := readDB(r.db).WithContext(ctx).
		Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(comments) == 0 {
		return comments, nil
	}

	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
		c.Likes = []uint{}
	}
	var likes []models.CommentLike
	if err := readDB(r.db).WithContext(ctx).
		Where("comment_id IN ?", ids).
		Order("id ASC").
		Find(&likes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	byID := make(map[uint]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}
	for _, l := range likes {
		if c := byID[l.CommentID]; c != nil {
			c.Likes = append(c.Likes, l.UserID)
		}
	}
	return comments, nil
}

// DeleteTree removes a comment together with every reply below it.
func (r *commentRepository) DeleteTree(ctx context.Context, id uint) error {
	var postID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.Comment
		if err := tx.Select("id", "post_id").First(&root, id).Error; err != nil {
			return err
		}
		postID = root.PostID

		doomed := []uint{id}
		frontier := []uint{id}
		for len(frontier) > 0 {
			var children []uint
			if err := tx.Model(&models.Comment{}).
				Where("parent_id IN ?", frontier).
				Pluck("id", &children).Error; err != nil {
				return err
			}
			doomed = append(doomed, children...)
			frontier = children
		}

		if err := tx.Where("comment_id IN ?", doomed).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", doomed).Delete(&models.Comment{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Comment", id)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, postID)
	cache.InvalidateFeed(ctx)
	return nil
}

func (r *commentRepository) IsLiked(ctx context.Context, userID, commentID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CommentLike{}).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *commentRepository) Like(ctx context.Context, userID, commentID uint) error {
	like := models.CommentLike{UserID: userID, CommentID: commentID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *commentRepository) Unlike(ctx context.Context, userID, commentID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Delete(&models.CommentLike{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
