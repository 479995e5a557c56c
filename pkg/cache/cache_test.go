package cache_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/cache"
)

func newTestClient(t *testing.T) *cache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewFromClient(rdb)
}

func TestTokenRevocation(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()

	revoked, err := c.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, c.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err = c.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestAllowRequestEnforcesFixedWindowLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		allowed, err := c.AllowRequest(ctx, "user-1:search", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := c.AllowRequest(ctx, "user-1:search", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAllowRequestWindowsAreIndependentByKey(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()

	allowedA, err := c.AllowRequest(ctx, "user-1:search", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowedA)

	allowedB, err := c.AllowRequest(ctx, "user-2:search", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowedB)
}

func TestPseudonymRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()

	_, ok, err := c.GetPseudonym(ctx, "tenant-a", "fp-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutPseudonym(ctx, "tenant-a", "fp-1", "REDACTED-1"))

	val, ok, err := c.GetPseudonym(ctx, "tenant-a", "fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "REDACTED-1", val)

	_, ok, err = c.GetPseudonym(ctx, "tenant-b", "fp-1")
	require.NoError(t, err)
	require.False(t, ok, "pseudonyms are namespaced per tenant")
}
