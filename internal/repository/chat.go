package repository

import (
	"context"
	"time"

	"vibely/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for direct message storage.
type ChatRepository interface {
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	NextSeq(ctx context.Context, key string) (int64, error)
	RecentMessages(ctx context.Context, key string, limit int) ([]*models.ChatMessage, error)
	UpsertThread(ctx context.Context, thread *models.ChatThread) error
	ThreadsForUser(ctx context.Context, userID uint) ([]*models.ChatThread, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// NextSeq derives the next sequence number from the stored messages. It is the
// fallback used when no Redis counter is available.
func (r *chatRepository) NextSeq(ctx context.Context, key string) (int64, error) {
	var maxSeq int64
	if err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("conversation_key = ?", key).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return maxSeq + 1, nil
}

// RecentMessages returns the newest limit messages of a conversation.
func (r *chatRepository) RecentMessages(ctx context.Context, key string, limit int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	if err := readDB(r.db).WithContext(ctx).
		Where("conversation_key = ?", key).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

func (r *chatRepository) UpsertThread(ctx context.Context, thread *models.ChatThread) error {
	if thread.LastMessageAt.IsZero() {
		thread.LastMessageAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_message", "last_sender_id", "last_message_at", "updated_at"}),
		}).
		Create(thread).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ThreadsForUser lists the user's conversations, most recently active first.
func (r *chatRepository) ThreadsForUser(ctx context.Context, userID uint) ([]*models.ChatThread, error) {
	var threads []*models.ChatThread
	if err := readDB(r.db).WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&threads).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return threads, nil
}
