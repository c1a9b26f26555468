// Package notifications provides real-time chat delivery over websockets.
package notifications

import (
	"context"
	"log"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"
)

const chatKeyChannelPrefix = "chat:key:"

// Notifier provides helpers to publish chat changes into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishChatChange tells every API instance that a conversation has new
// messages. The payload is the conversation key; listeners reload the snapshot.
func (n *Notifier) PublishChatChange(ctx context.Context, key string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ChatKeyChannel(key), key).Err()
}

// StartChatSubscriber subscribes to pattern `chat:key:*` and calls onMessage
// for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartChatSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, chatKeyChannelPrefix+"*")
	// Wait for the subscription to be confirmed so publishes right after
	// startup are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in ChatSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// ChatKeyChannel derives the Redis channel name for a conversation key.
func ChatKeyChannel(key string) string {
	return chatKeyChannelPrefix + key
}

// KeyFromChannel extracts the conversation key from a chat channel name.
func KeyFromChannel(channel string) (string, bool) {
	key, ok := strings.CutPrefix(channel, chatKeyChannelPrefix)
	return key, ok && key != ""
}
