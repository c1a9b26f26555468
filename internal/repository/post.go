package repository

import (
	"context"
	"errors"
	"time"

	"vibely/internal/cache"
	"vibely/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedCursor is the position of the last post on a feed page. Pages are ordered
// by (created_at, id) descending, so the next page starts strictly after it.
type FeedCursor struct {
	CreatedAt time.Time
	ID        uint
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error)
	Feed(ctx context.Context, after *FeedCursor, limit int, currentUserID uint) ([]*models.Post, error)
	Delete(ctx context.Context, id uint) error
	IsLiked(ctx context.Context, userID, postID uint) (bool, error)
	GetLikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
	GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error)
	Like(ctx context.Context, userID, postID uint) error
	Unlike(ctx context.Context, userID, postID uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	if post.IsPublic {
		cache.InvalidateFeed(ctx)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	var post models.Post
	err := withCounts(readDB(r.db).WithContext(ctx), currentUserID).
		Preload("User").
		First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	if err := r.attachLikers(ctx, []*models.Post{&post}); err != nil {
		return nil, err
	}
	return &post, nil
}

// Feed returns up to limit public posts older than after, newest first. A nil
// cursor starts from the newest post.
func (r *postRepository) Feed(ctx context.Context, after *FeedCursor, limit int, currentUserID uint) ([]*models.Post, error) {
	var posts []*models.Post
	q := withCounts(readDB(r.db).WithContext(ctx), currentUserID).
		Preload("User").
		Where("posts.is_public = ?", true)
	if after != nil {
		q = q.Where("(posts.created_at < ?) OR (posts.created_at = ? AND posts.id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := q.Order("posts.created_at DESC").
		Order("posts.id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := r.attachLikers(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

const (
	postColumns = "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) AS comments_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count"
	likedByViewer = "EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS liked"
)

// withCounts selects posts together with their comment and like counts and
// whether viewerID likes them. The anonymous viewer (0) likes nothing.
func withCounts(db *gorm.DB, viewerID uint) *gorm.DB {
	if viewerID == 0 {
		return db.Select(postColumns + ", false AS liked")
	}
	return db.Select(postColumns+", "+likedByViewer, viewerID)
}

func (r *postRepository) attachLikers(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	likers, err := r.GetLikerIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		p.Likes = likers[p.ID]
		if p.Likes == nil {
			p.Likes = []uint{}
		}
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, id)
	cache.InvalidateFeed(ctx)
	return nil
}

func (r *postRepository) IsLiked(ctx context.Context, userID, postID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) GetLikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	var likedPostIDs []uint
	if err := readDB(r.db).WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &likedPostIDs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return likedPostIDs, nil
}

// GetLikerIDs returns, per post, the ids of the users who liked it in like order.
func (r *postRepository) GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var likes []models.Like
	if err := readDB(r.db).WithContext(ctx).
		Select("user_id", "post_id").
		Where("post_id IN ?", postIDs).
		Order("id ASC").
		Find(&likes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, l := range likes {
		out[l.PostID] = append(out[l.PostID], l.UserID)
	}
	return out, nil
}

// Like is idempotent: liking an already liked post is a no-op.
func (r *postRepository) Like(ctx context.Context, userID, postID uint) error {
	return r.writeLike(ctx, postID, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Like{UserID: userID, PostID: postID}).Error
	})
}

// Unlike removes the like row outright; likes are not soft-deleted.
func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) error {
	return r.writeLike(ctx, postID, func(tx *gorm.DB) error {
		return tx.Unscoped().
			Where(map[string]any{"user_id": userID, "post_id": postID}).
			Delete(&models.Like{}).Error
	})
}

func (r *postRepository) writeLike(ctx context.Context, postID uint, write func(*gorm.DB) error) error {
	if err := write(r.db.WithContext(ctx)); err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, postID)
	return nil
}
