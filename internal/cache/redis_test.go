package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		c, err := Connect(ctx, addr)
		require.NoError(t, err, addr)
		assert.NoError(t, c.Set(ctx, "k", "v", 0).Err())
		_ = c.Close()
	}

	_, err := Connect(ctx, "redis://%zz")
	assert.Error(t, err)
}

func TestInitRedis_FallsBackWithoutServer(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })

	mr := miniredis.RunT(t)
	InitRedis(mr.Addr())
	require.NotNil(t, GetClient())

	addr := mr.Addr()
	mr.Close()
	InitRedis(addr)
	assert.Nil(t, GetClient())

	InitRedis("")
	assert.Nil(t, GetClient())
}
