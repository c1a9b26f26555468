package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_NoRedisCallsFetch(t *testing.T) {
	SetClient(nil)
	var got cachedThing
	calls := 0
	err := Aside(context.Background(), "thing:1", &got, time.Minute, func() error {
		calls++
		got = cachedThing{Name: "a", Count: 1}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "a", got.Name)
}

func TestAside_MissThenHit(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{Name: "cached", Count: 7}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, "thing:2", &first, time.Minute, fetch(&first)))
	assert.True(t, mr.Exists("thing:2"))

	var second cachedThing
	require.NoError(t, Aside(ctx, "thing:2", &second, time.Minute, fetch(&second)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := withMiniredis(t)
	var dest cachedThing
	err := Aside(context.Background(), "thing:3", &dest, time.Minute, func() error {
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("thing:3"))
}

func TestAside_ConcurrentMissesShareFetch(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]cachedThing, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dest := &results[i]
			_ = Aside(ctx, "thing:4", dest, time.Minute, func() error {
				atomic.AddInt32(&calls, 1)
				<-release
				*dest = cachedThing{Name: "shared", Count: 1}
				return nil
			})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	for _, r := range results {
		assert.Equal(t, "shared", r.Name)
	}
}

func TestInvalidateFeed_ChangesKey(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()

	before := FeedFirstPageKey(ctx, 5)
	InvalidateFeed(ctx)
	after := FeedFirstPageKey(ctx, 5)

	assert.Equal(t, "feed:v0:first:5", before)
	assert.Equal(t, "feed:v1:first:5", after)
}
