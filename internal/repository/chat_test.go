package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"vibely/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	const key = "1_2"

	t.Run("NextSeq", func(t *testing.T) {
		seq, err := repo.NextSeq(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)

		for i := 1; i <= 5; i++ {
			msg := &models.ChatMessage{
				PushKey:         fmt.Sprintf("push-%d", i),
				ConversationKey: key,
				Seq:             int64(i),
				Text:            fmt.Sprintf("message %d", i),
				UserID:          1,
				CreatedAtMs:     int64(1000 * i),
			}
			require.NoError(t, repo.CreateMessage(ctx, msg))
		}

		seq, err = repo.NextSeq(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(6), seq)

		seq, err = repo.NextSeq(ctx, "1_3")
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)
	})

	t.Run("RecentMessages", func(t *testing.T) {
		msgs, err := repo.RecentMessages(ctx, key, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, int64(5), msgs[0].Seq)
		assert.Equal(t, int64(3), msgs[2].Seq)
	})

	t.Run("Threads", func(t *testing.T) {
		older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := older.Add(time.Hour)

		require.NoError(t, repo.UpsertThread(ctx, &models.ChatThread{
			Key: key, UserAID: 1, UserBID: 2, LastMessage: "first", LastSenderID: 1, LastMessageAt: older,
		}))
		require.NoError(t, repo.UpsertThread(ctx, &models.ChatThread{
			Key: "1_3", UserAID: 1, UserBID: 3, LastMessage: "other", LastSenderID: 3, LastMessageAt: older.Add(time.Minute),
		}))
		require.NoError(t, repo.UpsertThread(ctx, &models.ChatThread{
			Key: key, UserAID: 1, UserBID: 2, LastMessage: "second", LastSenderID: 2, LastMessageAt: newer,
		}))

		threads, err := repo.ThreadsForUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, threads, 2)
		assert.Equal(t, key, threads[0].Key)
		assert.Equal(t, "second", threads[0].LastMessage)
		assert.Equal(t, uint(2), threads[0].LastSenderID)

		threads, err = repo.ThreadsForUser(ctx, 3)
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, "1_3", threads[0].Key)
	})
}
