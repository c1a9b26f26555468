package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibely/internal/cache"
	"vibely/internal/conversation"
	"vibely/internal/featureflags"
	"vibely/internal/middleware"
	"vibely/internal/models"
	"vibely/internal/observability"
	"vibely/internal/repository"
	"vibely/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultSnapshotLimit is how many of the newest messages a snapshot carries.
const DefaultSnapshotLimit = 200

// ChatChangePublisher announces that a conversation's messages changed.
type ChatChangePublisher interface {
	PublishChatChange(ctx context.Context, key string) error
}

// ChatService provides direct message business logic.
type ChatService struct {
	chatRepo      repository.ChatRepository
	userRepo      repository.UserRepository
	flags         *featureflags.Manager
	publisher     ChatChangePublisher
	snapshotLimit int
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	UserID    uint
	UserEmail string
	Key       string
	Text      string
	// CreatedAt is the sender's clock in unix milliseconds; zero means now.
	CreatedAt int64
}

// Snapshot is the newest messages of a conversation keyed by push key.
type Snapshot struct {
	Key      string                         `json:"key"`
	Messages map[string]*models.ChatMessage `json:"messages"`
}

// NewChatService returns a new ChatService.
func NewChatService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	flags *featureflags.Manager,
	snapshotLimit int,
) *ChatService {
	if snapshotLimit <= 0 {
		snapshotLimit = DefaultSnapshotLimit
	}
	return &ChatService{
		chatRepo:      chatRepo,
		userRepo:      userRepo,
		flags:         flags,
		snapshotLimit: snapshotLimit,
	}
}

// SetPublisher sets where change notifications go once a message is stored.
func (s *ChatService) SetPublisher(p ChatChangePublisher) {
	s.publisher = p
}

// Authorize checks that key is well formed, that userID is one of its two
// participants and that the other participant exists.
func (s *ChatService) Authorize(ctx context.Context, key string, userID uint) error {
	other, err := conversation.Other(key, userID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotParticipant) {
			return models.NewForbiddenError("You are not a participant in this conversation")
		}
		return models.NewValidationError("Invalid conversation key")
	}
	if _, err := s.userRepo.GetByID(ctx, other); err != nil {
		return err
	}
	return nil
}

// SendMessage appends one message to a conversation and notifies listeners.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (msg *models.ChatMessage, err error) {
	ctx, span := observability.StartSpan(ctx, "ChatService.SendMessage", attribute.String("chat.key", in.Key))
	defer func() { observability.EndSpan(span, err) }()
	return s.sendMessage(ctx, in)
}

func (s *ChatService) sendMessage(ctx context.Context, in SendMessageInput) (*models.ChatMessage, error) {
	text := strings.TrimSpace(in.Text)
	if err := validation.ValidateChatText(text); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.Authorize(ctx, in.Key, in.UserID); err != nil {
		return nil, err
	}
	low, high, _ := conversation.Parse(in.Key)

	pushKey, err := uuid.NewV7()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	seq, err := s.nextSeq(ctx, in.Key, in.UserID)
	if err != nil {
		return nil, err
	}

	createdAt := in.CreatedAt
	if createdAt <= 0 {
		createdAt = time.Now().UnixMilli()
	}

	msg := &models.ChatMessage{
		PushKey:         pushKey.String(),
		ConversationKey: in.Key,
		Seq:             seq,
		Text:            text,
		UserID:          in.UserID,
		UserEmail:       in.UserEmail,
		CreatedAtMs:     createdAt,
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	observability.ChatMessagesTotal.Inc()

	thread := &models.ChatThread{
		Key:           in.Key,
		UserAID:       low,
		UserBID:       high,
		LastMessage:   text,
		LastSenderID:  in.UserID,
		LastMessageAt: time.Now().UTC(),
	}
	if err := s.chatRepo.UpsertThread(ctx, thread); err != nil {
		middleware.Logger.WarnContext(ctx, "chat thread upsert failed", "key", in.Key, "error", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishChatChange(ctx, in.Key); err != nil {
			middleware.Logger.WarnContext(ctx, "chat change publish failed", "key", in.Key, "error", err)
		}
	}
	return msg, nil
}

// nextSeq hands out the per-conversation sequence number. Redis INCR is used
// when enabled and reachable; the database maximum is the fallback. A missing
// counter is seeded from the database with SETNX, so concurrent first senders
// still draw distinct numbers from one counter.
func (s *ChatService) nextSeq(ctx context.Context, key string, userID uint) (int64, error) {
	rdb := cache.GetClient()
	if rdb == nil || !s.flags.Enabled(featureflags.ChatRedisSeq, userID) {
		return s.chatRepo.NextSeq(ctx, key)
	}

	counterKey := fmt.Sprintf("chat:seq:%s", key)
	exists, err := rdb.Exists(ctx, counterKey).Result()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "chat seq counter unavailable, using database", "key", key, "error", err)
		return s.chatRepo.NextSeq(ctx, key)
	}
	if exists == 0 {
		dbNext, err := s.chatRepo.NextSeq(ctx, key)
		if err != nil {
			return 0, err
		}
		if err := rdb.SetNX(ctx, counterKey, dbNext-1, 0).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "chat seq counter seed failed, using database", "key", key, "error", err)
			return dbNext, nil
		}
	}

	n, err := rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "chat seq counter unavailable, using database", "key", key, "error", err)
		return s.chatRepo.NextSeq(ctx, key)
	}
	return n, nil
}

// Snapshot returns the newest messages of a conversation keyed by push key.
// It does not check membership; callers authorize first.
func (s *ChatService) Snapshot(ctx context.Context, key string) (*Snapshot, error) {
	msgs, err := s.chatRepo.RecentMessages(ctx, key, s.snapshotLimit)
	if err != nil {
		return nil, err
	}
	out := &Snapshot{Key: key, Messages: make(map[string]*models.ChatMessage, len(msgs))}
	for _, m := range msgs {
		out.Messages[m.PushKey] = m
	}
	return out, nil
}

// Threads lists the user's conversations, newest activity first, with the
// other participant attached.
func (s *ChatService) Threads(ctx context.Context, userID uint) ([]*models.ChatThread, error) {
	threads, err := s.chatRepo.ThreadsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		return []*models.ChatThread{}, nil
	}

	ids := make([]uint, 0, len(threads))
	for _, t := range threads {
		other := t.UserAID
		if other == userID {
			other = t.UserBID
		}
		ids = append(ids, other)
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, t := range threads {
		other := t.UserAID
		if other == userID {
			other = t.UserBID
		}
		t.Participant = byID[other]
	}
	return threads, nil
}
