package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlact/lactd/internal/errdefs"
)

func TestWatchdog_ConfirmPreventsRevert(t *testing.T) {
	w := New(time.Hour)
	var reverted atomic.Bool
	require.NoError(t, w.Start(func(ctx context.Context) error {
		reverted.Store(true)
		return nil
	}))

	assert.True(t, w.Pending())
	require.NoError(t, w.Confirm())
	w.Wait()

	assert.False(t, w.Pending())
	assert.False(t, reverted.Load())
}

func TestWatchdog_ExplicitRevertRunsRevertFunc(t *testing.T) {
	w := New(time.Hour)
	var reverted atomic.Bool
	require.NoError(t, w.Start(func(ctx context.Context) error {
		reverted.Store(true)
		return nil
	}))

	require.NoError(t, w.Revert())
	w.Wait()

	assert.False(t, w.Pending())
	assert.True(t, reverted.Load())
}

func TestWatchdog_TimeoutRevertsAutomatically(t *testing.T) {
	w := New(time.Hour)
	fired := make(chan time.Time, 1)
	fired <- time.Now()
	w.clock = func() <-chan time.Time { return fired }

	var reverted atomic.Bool
	require.NoError(t, w.Start(func(ctx context.Context) error {
		reverted.Store(true)
		return nil
	}))

	w.Wait()
	assert.True(t, reverted.Load())
	assert.False(t, w.Pending())
}

func TestWatchdog_SecondStartFailsWhilePending(t *testing.T) {
	w := New(time.Hour)
	require.NoError(t, w.Start(func(ctx context.Context) error { return nil }))

	err := w.Start(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, errdefs.ErrPendingConfirmation)
}

func TestWatchdog_ConfirmWithNothingPendingIsNotSupported(t *testing.T) {
	w := New(time.Hour)
	err := w.Confirm()
	assert.ErrorIs(t, err, errdefs.ErrNotSupported)
}
