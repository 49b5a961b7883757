//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("PAYMAN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PAYMAN_TEST_REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), config.RedisConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisLocker_ExclusiveUntilUnlock(t *testing.T) {
	c := newTestClient(t)
	l := NewLocker(c)
	l.tries = 2
	ctx := context.Background()
	key := CallbackLockKey("test", time.Now().Format(time.RFC3339Nano))

	token, err := l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	require.NoError(t, l.Unlock(ctx, key, "someone-else"))
	_, err = l.TryLock(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld, "a foreign token must not release the lock")

	require.NoError(t, l.Unlock(ctx, key, token))
	again, err := l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Unlock(ctx, key, again))
}
