package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "shareledger/pkg/domain"
)

func TestAccessors(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		ctx := context.Background()
		assert.True(t, UserID(ctx).IsNil())
		assert.Equal(t, id.RoleVisitor, Role(ctx))
		assert.Empty(t, ClientIP(ctx))
		assert.Empty(t, RequestID(ctx))
		assert.Zero(t, Elapsed(ctx))
	})

	t.Run("round trips injected values", func(t *testing.T) {
		userID := id.UserID(uuid.New())
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		ctx := WithUserID(context.Background(), userID)
		ctx = WithRole(ctx, id.RoleDirector)
		ctx = WithClientMetadata(ctx, "10.0.0.1", "agent")
		ctx = WithTime(ctx, fixed)

		assert.Equal(t, userID, UserID(ctx))
		assert.Equal(t, id.RoleDirector, Role(ctx))
		assert.Equal(t, "10.0.0.1", ClientIP(ctx))
		assert.Equal(t, "agent", UserAgent(ctx))
		assert.Equal(t, fixed, Now(ctx))
	})

	t.Run("audit marker", func(t *testing.T) {
		MarkAudited(context.Background())

		ctx, marker := WithAuditMarker(context.Background())
		assert.False(t, marker.Recorded())
		MarkAudited(ctx)
		assert.True(t, marker.Recorded())
	})
}
