package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autodebug/autodebug/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(time.Second, nil)
	assert.Equal(t, ShutdownStateRunning, sm.State())

	var order []string
	for _, name := range []string{"logger", "metrics", "ipc"} {
		name := name
		sm.AddHook(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"ipc", "metrics", "logger"}, order)
	assert.Equal(t, ShutdownStateComplete, sm.State())
	assert.Equal(t, "test", sm.Reason())

	select {
	case <-sm.Done():
	default:
		t.Fatal("Done should be closed after shutdown")
	}
}

func TestShutdownOnlyOnce(t *testing.T) {
	sm := NewShutdownManager(time.Second, nil)
	calls := 0
	sm.AddHook("count", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, sm.Shutdown(context.Background(), "first"))
	err := sm.Shutdown(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "first", sm.Reason())
}

func TestShutdownCollectsHookErrors(t *testing.T) {
	sm := NewShutdownManager(time.Second, nil)
	boom := errors.New("boom")
	ran := false

	sm.AddHook("last", func(context.Context) error {
		ran = true
		return nil
	})
	sm.AddHook("failing", func(context.Context) error { return boom })

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "a failing hook does not stop later hooks")
	assert.True(t, sm.IsShuttingDown())
}

func TestWaitCompletion(t *testing.T) {
	sm := NewShutdownManager(time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sm.WaitCompletion(ctx)
	assert.True(t, types.IsErrCode(err, types.ErrCodeCanceled))

	go sm.Shutdown(context.Background(), "async")
	require.NoError(t, sm.WaitCompletion(context.Background()))
}

func TestStartStop(t *testing.T) {
	sm := NewShutdownManager(time.Second, nil)
	sm.Start()
	sm.Start()
	sm.Stop()
	sm.Stop()
	assert.Equal(t, ShutdownStateRunning, sm.State())
	assert.Contains(t, sm.String(), "started: false")
}
