package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"vibely/internal/models"
	"vibely/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max conversation subscriptions per connection
	maxSubsPerClient = 50

	snapshotLoadTimeout = 5 * time.Second
)

// SnapshotFunc loads the newest messages of a conversation keyed by push key.
type SnapshotFunc func(ctx context.Context, key string) (map[string]*models.ChatMessage, error)

// AuthorizeFunc reports whether userID may listen to a conversation.
type AuthorizeFunc func(ctx context.Context, key string, userID uint) error

// Frame is a message exchanged with chat websocket clients. Clients send
// subscribe/unsubscribe frames; the server answers with snapshot or error frames.
type Frame struct {
	Type     string                         `json:"type"`
	Key      string                         `json:"key,omitempty"`
	Messages map[string]*models.ChatMessage `json:"messages,omitempty"`
	Message  string                         `json:"message,omitempty"`
}

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSnapshot    = "snapshot"
	FrameError       = "error"
)

// ChatHub fans conversation snapshots out to subscribed websocket clients.
// Every frame carries the full snapshot, so a dropped frame is repaired by the
// next one.
type ChatHub struct {
	mu sync.RWMutex

	// Map: conversation key -> subscribed clients
	subs map[string]map[*Client]struct{}

	// Map: client -> keys it is subscribed to
	clientKeys map[*Client]map[string]struct{}

	// Map: userID -> set of active Clients (Multi-Device Support)
	userConns map[uint]map[*Client]struct{}

	load      SnapshotFunc
	authorize AuthorizeFunc
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// NewChatHub creates a new ChatHub instance
func NewChatHub(load SnapshotFunc, authorize AuthorizeFunc) *ChatHub {
	return &ChatHub{
		subs:       make(map[string]map[*Client]struct{}),
		clientKeys: make(map[*Client]map[string]struct{}),
		userConns:  make(map[uint]map[*Client]struct{}),
		load:       load,
		authorize:  authorize,
	}
}

// Register registers a user's websocket connection. Returns Client or error if limits exceeded.
func (h *ChatHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	client := NewClient(h, conn, userID)
	if err := h.Attach(client); err != nil {
		return nil, err
	}
	return client, nil
}

// Attach adds an already constructed client to the hub.
func (h *ChatHub) Attach(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[*Client]struct{})
	}
	if len(h.userConns[client.UserID]) >= maxConnsPerUser {
		return errors.New("user connection limit reached")
	}

	client.Hub = h
	client.IncomingHandler = h.handleIncoming
	h.userConns[client.UserID][client] = struct{}{}
	log.Printf("ChatHub: Registered user %d (Active clients: %d)", client.UserID, len(h.userConns[client.UserID]))
	return nil
}

// UnregisterClient removes a connection and all of its subscriptions.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.userConns, client.UserID)
	}

	for key := range h.clientKeys[client] {
		h.removeSubLocked(client, key)
	}
	delete(h.clientKeys, client)
	log.Printf("ChatHub: Unregistered client for user %d", client.UserID)
}

func (h *ChatHub) handleIncoming(c *Client, raw []byte) {
	var in Frame
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(c, "", "Invalid message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotLoadTimeout)
	defer cancel()

	switch in.Type {
	case FrameSubscribe:
		if err := h.Subscribe(ctx, c, in.Key); err != nil {
			h.sendError(c, in.Key, clientMessage(err))
		}
	case FrameUnsubscribe:
		h.Unsubscribe(c, in.Key)
	default:
		h.sendError(c, in.Key, "Unknown message type")
	}
}

// Subscribe adds client to a conversation after authorizing it and sends the
// current snapshot.
func (h *ChatHub) Subscribe(ctx context.Context, client *Client, key string) error {
	if h.authorize != nil {
		if err := h.authorize(ctx, key, client.UserID); err != nil {
			return err
		}
	}

	h.mu.Lock()
	keys := h.clientKeys[client]
	if keys == nil {
		keys = make(map[string]struct{})
		h.clientKeys[client] = keys
	}
	if _, already := keys[key]; !already {
		if len(keys) >= maxSubsPerClient {
			h.mu.Unlock()
			return models.NewValidationError("Too many subscriptions")
		}
		keys[key] = struct{}{}
		if h.subs[key] == nil {
			h.subs[key] = make(map[*Client]struct{})
		}
		h.subs[key][client] = struct{}{}
		observability.ChatSubscriptions.Inc()
	}
	h.mu.Unlock()

	frame, err := h.snapshotFrame(ctx, key)
	if err != nil {
		return err
	}
	if client.TrySend(frame) {
		observability.ChatSnapshotsSent.Inc()
	}
	return nil
}

// Unsubscribe removes client from a conversation. Unknown keys are ignored.
func (h *ChatHub) Unsubscribe(client *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSubLocked(client, key)
}

func (h *ChatHub) removeSubLocked(client *Client, key string) {
	if keys := h.clientKeys[client]; keys != nil {
		delete(keys, key)
	}
	clients, ok := h.subs[key]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	observability.ChatSubscriptions.Dec()
	if len(clients) == 0 {
		delete(h.subs, key)
	}
}

// Subscribers returns how many connections listen to key.
func (h *ChatHub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Refresh reloads the snapshot of key and pushes it to every subscriber on
// this instance.
func (h *ChatHub) Refresh(ctx context.Context, key string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subs[key]))
	for c := range h.subs[key] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	frame, err := h.snapshotFrame(ctx, key)
	if err != nil {
		log.Printf("ChatHub: Failed to load snapshot for %s: %v", key, err)
		return
	}
	for _, c := range targets {
		if c.TrySend(frame) {
			observability.ChatSnapshotsSent.Inc()
		}
	}
}

// PublishChatChange refreshes listeners in-process. It stands in for the Redis
// notifier when no Redis is configured.
func (h *ChatHub) PublishChatChange(ctx context.Context, key string) error {
	h.Refresh(ctx, key)
	return nil
}

func (h *ChatHub) snapshotFrame(ctx context.Context, key string) ([]byte, error) {
	messages := map[string]*models.ChatMessage{}
	if h.load != nil {
		loaded, err := h.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			messages = loaded
		}
	}
	return json.Marshal(Frame{Type: FrameSnapshot, Key: key, Messages: messages})
}

func (h *ChatHub) sendError(c *Client, key, message string) {
	frame, err := json.Marshal(Frame{Type: FrameError, Key: key, Message: message})
	if err != nil {
		return
	}
	c.TrySend(frame)
}

func clientMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		return appErr.Message
	}
	return "Could not load conversation"
}

// StartWiring connects the ChatHub to Redis pub/sub for conversation changes.
func (h *ChatHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartChatSubscriber(ctx, func(channel, _ string) {
		key, ok := KeyFromChannel(channel)
		if !ok {
			log.Printf("ChatHub: Invalid channel format: %s", channel)
			return
		}
		refreshCtx, cancel := context.WithTimeout(ctx, snapshotLoadTimeout)
		defer cancel()
		h.Refresh(refreshCtx, key)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	for _, clients := range h.subs {
		observability.ChatSubscriptions.Sub(float64(len(clients)))
	}
	h.subs = make(map[string]map[*Client]struct{})
	h.clientKeys = make(map[*Client]map[string]struct{})
	h.userConns = make(map[uint]map[*Client]struct{})

	return nil
}
