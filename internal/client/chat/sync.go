package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"vibely/internal/client/api"

	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next dial.
const DefaultReconnectDelay = 2 * time.Second

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("chat: sync closed")

// RejectedError is returned when the server refuses the subscription or the
// handshake. Run does not reconnect after it.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat: rejected (%d): %s", e.Status, e.Message)
	}
	return "chat: rejected: " + e.Message
}

// Sender appends a message. *api.InboxAPI implements it.
type Sender interface {
	Send(ctx context.Context, key, text string, createdAt time.Time) (*api.Message, error)
}

// Config configures a Sync.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8375/api/ws/chat.
	URL string
	// Token returns the bearer token sent in the handshake.
	Token func() (string, error)
	// Ticket, when set, is used instead of Token to obtain a single use
	// ticket passed as ?ticket=.
	Ticket         func(ctx context.Context) (string, error)
	ReconnectDelay time.Duration
	// OnSnapshot is called with the sorted list after every snapshot. It
	// runs on the read loop and must not block.
	OnSnapshot func([]api.Message)
	Logger     *slog.Logger
	Dialer     *websocket.Dialer
}

// ConfigFor derives the websocket endpoint and credentials from an API client.
func ConfigFor(c *api.Client) Config {
	return Config{
		URL:   WebsocketURL(c.BaseURL()),
		Token: c.Token,
	}
}

// WebsocketURL maps an API root such as https://host/api to wss://host/api/ws/chat.
func WebsocketURL(apiBase *url.URL) string {
	u := *apiBase
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath("ws", "chat").String()
}

// frame mirrors the server's websocket envelope.
type frame struct {
	Type     string                  `json:"type"`
	Key      string                  `json:"key,omitempty"`
	Messages map[string]*api.Message `json:"messages,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

// Sync is the live view of one conversation for user me.
type Sync struct {
	key    string
	me     uint
	sender Sender
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	messages []api.Message
	conn     *websocket.Conn
	cancel   context.CancelFunc
	closed   bool
}

// New validates key and prepares a Sync. Nothing is dialed until Run.
func New(key string, me uint, sender Sender, cfg Config) (*Sync, error) {
	if _, _, err := ParseConversationKey(key); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("chat: websocket url is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{
		key:    key,
		me:     me,
		sender: sender,
		cfg:    cfg,
		logger: logger.With(slog.String("conversation", key)),
	}, nil
}

// Key returns the conversation key.
func (s *Sync) Key() string { return s.key }

// Messages returns the list from the latest snapshot.
func (s *Sync) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Delivered reports whether the delivered mark is shown for msg: always for
// the user's own messages, never for the other participant's.
func (s *Sync) Delivered(msg api.Message) bool {
	return msg.UserID == s.me
}

// Send appends text stamped with the local clock. It is not retried; the
// message shows up in the list with the next snapshot.
func (s *Sync) Send(ctx context.Context, text string) (*api.Message, error) {
	return s.sender.Send(ctx, s.key, text, time.Now())
}

// Run keeps the subscription open until ctx ends or Close is called,
// redialing after ReconnectDelay whenever the connection drops. It returns
// nil on shutdown and a *RejectedError if the server refuses the user.
func (s *Sync) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return err
		}
		s.logger.Warn("chat connection lost, reconnecting",
			slog.Duration("delay", s.cfg.ReconnectDelay), slog.String("error", err.Error()))

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close stops Run and tears the connection down.
func (s *Sync) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// session dials, subscribes and reads frames until the connection fails.
func (s *Sync) session(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(frame{Type: "subscribe", Key: s.key}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Debug("chat subscribed")

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch f.Type {
		case "snapshot":
			if f.Key == s.key {
				s.replace(f.Messages)
			}
		case "error":
			if f.Key == s.key {
				return &RejectedError{Message: f.Message}
			}
			s.logger.Warn("chat server error", slog.String("message", f.Message))
		}
	}
}

func (s *Sync) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	header := http.Header{}
	switch {
	case s.cfg.Ticket != nil:
		ticket, err := s.cfg.Ticket(ctx)
		if err != nil {
			return nil, fmt.Errorf("websocket ticket: %w", err)
		}
		q := u.Query()
		q.Set("ticket", ticket)
		u.RawQuery = q.Encode()
	case s.cfg.Token != nil:
		token, err := s.cfg.Token()
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &RejectedError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

func (s *Sync) replace(snapshot map[string]*api.Message) {
	list := Materialize(snapshot)
	s.mu.Lock()
	s.messages = list
	s.mu.Unlock()
	if s.cfg.OnSnapshot != nil {
		s.cfg.OnSnapshot(slices.Clone(list))
	}
}
