// Package likes applies like taps to the local feed before the server confirms
// them, and rolls a tap back when the server rejects it.
package likes

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"vibely/internal/client/api"
	"vibely/internal/client/feed"
)

// ErrNotLoaded is returned for a post that is not in the local feed.
var ErrNotLoaded = errors.New("likes: post is not loaded")

// Remote sends the desired like state. *api.ActionsAPI implements it.
type Remote interface {
	Like(ctx context.Context, postID uint, liked *bool) (*api.LikeResult, error)
}

// Toggler flips likes for one signed-in user. Requests for one post go out
// one at a time in tap order; taps made while a request is in flight collapse
// into the latest desired state.
type Toggler struct {
	feed   *feed.Feed
	remote Remote
	userID uint
	logger *slog.Logger

	mu     sync.Mutex
	queues map[uint]*postQueue
	wg     sync.WaitGroup
	errs   chan error
}

type request struct {
	ctx  context.Context
	want bool
	gen  uint64
}

// postQueue is guarded by Toggler.mu.
type postQueue struct {
	gen  uint64
	busy bool
	next *request
	// acked is the state the server last confirmed, nil when unknown.
	acked *bool
}

// New returns a Toggler acting as userID. A nil logger uses slog.Default.
func New(f *feed.Feed, remote Remote, userID uint, logger *slog.Logger) *Toggler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toggler{
		feed:   f,
		remote: remote,
		userID: userID,
		logger: logger,
		queues: make(map[uint]*postQueue),
		errs:   make(chan error, 16),
	}
}

// Toggle flips the user's like on postID locally and returns the new state.
// The server call runs in the background with ctx; if it fails and no newer
// tap on the same post happened meanwhile, the local change is reverted.
func (t *Toggler) Toggle(ctx context.Context, postID uint) (bool, error) {
	t.mu.Lock()
	liked, found := t.feed.IsLiked(postID, t.userID)
	if !found {
		t.mu.Unlock()
		return false, ErrNotLoaded
	}
	want := !liked
	t.feed.ApplyLike(postID, t.userID, want)

	q := t.queues[postID]
	if q == nil {
		q = &postQueue{}
		t.queues[postID] = q
	}
	q.gen++
	r := request{ctx: ctx, want: want, gen: q.gen}
	if q.busy {
		q.next = &r
		t.mu.Unlock()
		return want, nil
	}
	q.busy = true
	t.wg.Add(1)
	t.mu.Unlock()

	go t.drain(postID, r)
	return want, nil
}

// drain sends r and then whatever was queued behind it until the post's
// queue is empty.
func (t *Toggler) drain(postID uint, r request) {
	defer t.wg.Done()

	for {
		want := r.want
		_, err := t.remote.Like(r.ctx, postID, &want)

		t.mu.Lock()
		q := t.queues[postID]
		if err == nil {
			q.acked = &want
		} else {
			q.acked = nil
			if q.gen == r.gen {
				t.feed.ApplyLike(postID, t.userID, !want)
			}
		}
		next := q.next
		q.next = nil
		if next != nil && q.acked != nil && *q.acked == next.want {
			next = nil
		}
		if next == nil {
			q.busy = false
		}
		t.mu.Unlock()

		if err != nil {
			t.report(postID, want, err)
		}
		if next == nil {
			return
		}
		r = *next
	}
}

func (t *Toggler) report(postID uint, want bool, err error) {
	t.logger.Warn("like request failed", "post_id", postID, "liked", want, "error", err)
	select {
	case t.errs <- err:
	default:
		t.logger.Debug("like error dropped, nobody is reading", "post_id", postID)
	}
}

// Errors delivers failed like requests. Errors are dropped when the buffer is
// full.
func (t *Toggler) Errors() <-chan error {
	return t.errs
}

// Wait blocks until every in-flight request has finished.
func (t *Toggler) Wait() {
	t.wg.Wait()
}
