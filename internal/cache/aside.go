package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"vibely/internal/observability"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var group singleflight.Group

// Aside implements the cache-aside pattern: it fills dest from Redis when key is
// present, otherwise runs fetch (which must populate dest) and stores the result
// for ttl. Concurrent misses on the same key share one fetch. Without Redis it
// simply calls fetch.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if client == nil {
		return fetch()
	}

	family := keyFamily(key)

	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			observability.CacheLookups.WithLabelValues(family, "hit").Inc()
			return nil
		}
		// Corrupt entry: fall through and overwrite it.
	case !errors.Is(err, redis.Nil):
		observability.CacheLookups.WithLabelValues(family, "error").Inc()
		return fetch()
	}
	observability.CacheLookups.WithLabelValues(family, "miss").Inc()

	leader := false
	v, err, _ := group.Do(key, func() (any, error) {
		leader = true
		if fetchErr := fetch(); fetchErr != nil {
			return nil, fetchErr
		}
		encoded, marshalErr := json.Marshal(dest)
		if marshalErr != nil {
			return nil, marshalErr
		}
		client.Set(ctx, key, encoded, ttl)
		return encoded, nil
	})
	if err != nil {
		return err
	}
	if leader {
		return nil
	}
	return json.Unmarshal(v.([]byte), dest)
}

func keyFamily(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
