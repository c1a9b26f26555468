package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"vibely/internal/conversation"
	"vibely/internal/validation"
)

// InboxAPI wraps /inbox and the conversation message endpoints.
type InboxAPI struct {
	c *Client
}

// Chats lists the caller's conversations, most recent first.
func (i *InboxAPI) Chats(ctx context.Context) ([]*Thread, error) {
	var out struct {
		Chats []*Thread `json:"chats"`
	}
	if err := i.c.do(ctx, http.MethodGet, "inbox/chats", nil, nil, &out, "Failed to load chats"); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// Messages loads the current snapshot of a conversation.
func (i *InboxAPI) Messages(ctx context.Context, key string) (*Snapshot, error) {
	if _, _, err := conversation.Parse(key); err != nil {
		return nil, validationError(err)
	}
	var out Snapshot
	if err := i.c.do(ctx, http.MethodGet, messagesPath(key), nil, nil, &out, "Failed to load messages"); err != nil {
		return nil, err
	}
	for pushKey, m := range out.Messages {
		if m != nil {
			m.Key = pushKey
		}
	}
	return &out, nil
}

// Send appends one message stamped with createdAt from the caller's clock. A
// zero createdAt is replaced by the current time.
func (i *InboxAPI) Send(ctx context.Context, key, text string, createdAt time.Time) (*Message, error) {
	if _, _, err := conversation.Parse(key); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidateChatText(text); err != nil {
		return nil, validationError(err)
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	body := map[string]any{"text": text, "createdAt": createdAt.UnixMilli()}

	var out struct {
		Key     string   `json:"key"`
		Message *Message `json:"message"`
	}
	if err := i.c.do(ctx, http.MethodPost, messagesPath(key), nil, body, &out, "Failed to send message"); err != nil {
		return nil, err
	}
	if out.Message == nil {
		return nil, &Error{Kind: KindUnexpected, Message: UnexpectedMessage}
	}
	out.Message.Key = out.Key
	return out.Message, nil
}

func messagesPath(key string) string {
	return "chats/" + url.PathEscape(key) + "/messages"
}
