package maintenance

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisFlagStoreIsShared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	api := NewRedisFlagStore(client, "")
	worker := NewRedisFlagStore(client, DefaultFlagKey)

	enabled, err := worker.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, api.SetEnabled(ctx, true))
	enabled, err = worker.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	got, err := mr.Get(DefaultFlagKey)
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	require.NoError(t, api.SetEnabled(ctx, false))
	enabled, err = worker.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, mr.Exists(DefaultFlagKey))
}

func TestRedisFlagStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisFlagStore(client, "").Enabled(context.Background())
	assert.Error(t, err)
}
