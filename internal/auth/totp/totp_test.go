package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	a := New("ShareLedger", WithClock(func() time.Time { return now }))

	secret, uri, err := a.Generate("alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/ShareLedger:alice@example.com"))

	code, err := a.CodeAt(secret, now)
	require.NoError(t, err)
	assert.True(t, a.Validate(code, secret))

	t.Run("one step of skew is tolerated", func(t *testing.T) {
		prev, err := a.CodeAt(secret, now.Add(-30*time.Second))
		require.NoError(t, err)
		assert.True(t, a.Validate(prev, secret))
	})

	t.Run("two steps away is rejected", func(t *testing.T) {
		old, err := a.CodeAt(secret, now.Add(-90*time.Second))
		require.NoError(t, err)
		assert.False(t, a.Validate(old, secret))
	})

	t.Run("empty inputs are rejected", func(t *testing.T) {
		assert.False(t, a.Validate("", secret))
		assert.False(t, a.Validate(code, ""))
	})
}
