//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareledger/pkg/testutil/containers"
)

func TestRedisTRL(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	trl := NewRedisTRL(rc.Client)

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	ttl, err := rc.Client.TTL(ctx, revokedTokenKeyPrefix+"jti-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
