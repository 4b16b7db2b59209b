package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_SweepsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	job := JobFunc(func(context.Context, time.Time) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New("test", job, 5*time.Millisecond).Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_FailureDoesNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	job := JobFunc(func(context.Context, time.Time) (int, error) {
		calls.Add(1)
		return 0, errors.New("db down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = New("failing", job, 5*time.Millisecond).Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestRunner_PassesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seen time.Time
	job := JobFunc(func(_ context.Context, now time.Time) (int, error) {
		seen = now
		return 0, nil
	})

	New("clock", job, time.Hour, WithClock(func() time.Time { return fixed })).RunOnce(context.Background())
	assert.Equal(t, fixed, seen)
}
