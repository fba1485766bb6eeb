package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// getTestClient connects to a local Redis on DB 1 and skips when none is running.
func getTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Connect(context.Background(), "localhost:6379", "", 1, zap.NewNop())
	if err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_GetSet(t *testing.T) {
	c := getTestClient(t)
	ctx := context.Background()
	key := "test:redisx:" + uuid.NewString()
	defer c.Del(ctx, key)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, key, "v1", time.Minute))
	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, c.Del(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestClient_SetNX(t *testing.T) {
	c := getTestClient(t)
	ctx := context.Background()
	key := "test:redisx:lock:" + uuid.NewString()
	defer c.Del(ctx, key)

	ok, err := c.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
