// Package chat keeps one conversation in sync with the server. The server
// pushes the full message set on subscribe and after every change; each push
// replaces the local list wholesale.
package chat

import (
	"cmp"
	"slices"

	"vibely/internal/client/api"
	"vibely/internal/conversation"
)

// ConversationKey returns the key two users share: their ids sorted ascending
// and joined with "_".
func ConversationKey(a, b uint) string {
	return conversation.Key(a, b)
}

// ParseConversationKey validates a key taken from a route or user input.
func ParseConversationKey(key string) (low, high uint, err error) {
	return conversation.Parse(key)
}

// Materialize turns a keyed snapshot into a list sorted ascending by the
// sender's createdAt. Equal timestamps fall back to the server sequence number
// and then to the push key, so the order never depends on map iteration.
//
// createdAt comes from the sender's clock; two devices with skewed clocks can
// still interleave out of send order.
func Materialize(snapshot map[string]*api.Message) []api.Message {
	out := make([]api.Message, 0, len(snapshot))
	for key, m := range snapshot {
		if m == nil {
			continue
		}
		msg := *m
		msg.Key = key
		out = append(out, msg)
	}
	slices.SortFunc(out, func(a, b api.Message) int {
		return cmp.Or(
			cmp.Compare(a.CreatedAt, b.CreatedAt),
			cmp.Compare(a.Seq, b.Seq),
			cmp.Compare(a.Key, b.Key),
		)
	})
	return out
}
