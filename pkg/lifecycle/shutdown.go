// Package lifecycle runs registered cleanup hooks when the process is asked to stop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/types"
)

// ShutdownState represents the current state of the shutdown process
type ShutdownState string

const (
	// ShutdownStateRunning indicates the process is running normally
	ShutdownStateRunning ShutdownState = "running"
	// ShutdownStateStopping indicates hooks are being run
	ShutdownStateStopping ShutdownState = "stopping"
	// ShutdownStateComplete indicates shutdown is complete
	ShutdownStateComplete ShutdownState = "complete"
)

// hookTimeout bounds each individual hook
const hookTimeout = 5 * time.Second

// ShutdownHook is a function that can be called during shutdown
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// ShutdownManager runs hooks once, on SIGINT/SIGTERM or an explicit Shutdown
type ShutdownManager struct {
	mu             sync.RWMutex
	state          ShutdownState
	timeout        time.Duration
	hooks          []namedHook
	logger         *logger.Logger
	signalChan     chan os.Signal
	stopCtx        context.Context
	stopCancel     context.CancelFunc
	started        bool
	completionChan chan struct{}
	reason         string
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(timeout time.Duration, log *logger.Logger) *ShutdownManager {
	if log == nil {
		log = logger.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ShutdownManager{
		state:          ShutdownStateRunning,
		timeout:        timeout,
		logger:         log.With("component", "shutdown_manager"),
		signalChan:     make(chan os.Signal, 1),
		stopCtx:        ctx,
		stopCancel:     cancel,
		completionChan: make(chan struct{}),
	}
}

// Start begins listening for shutdown signals
func (sm *ShutdownManager) Start() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.started {
		return
	}

	signal.Notify(sm.signalChan, syscall.SIGINT, syscall.SIGTERM)
	sm.started = true
	sm.logger.Debug("Shutdown manager started", "timeout", sm.timeout)

	go sm.handleSignals()
}

// Stop stops signal handling without running hooks
func (sm *ShutdownManager) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.started {
		return
	}

	signal.Stop(sm.signalChan)
	sm.stopCancel()
	sm.started = false
}

// AddHook registers a hook. Hooks run in reverse registration order, so
// resources are released in the opposite order they were acquired.
func (sm *ShutdownManager) AddHook(name string, hook ShutdownHook) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.hooks = append(sm.hooks, namedHook{name: name, fn: hook})
	sm.logger.Debug("Shutdown hook registered", "hook", name, "total_hooks", len(sm.hooks))
}

// Shutdown runs every hook once. A second call returns an INVALID error.
// Hook failures are collected and returned together after all hooks ran.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.mu.Lock()
	if sm.state != ShutdownStateRunning {
		sm.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "shutdown already initiated")
	}
	sm.state = ShutdownStateStopping
	sm.reason = reason
	hooks := make([]namedHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	start := time.Now()
	sm.logger.Info("Shutdown initiated", "reason", reason)

	shutdownCtx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := sm.runHook(shutdownCtx, h); err != nil {
			sm.logger.Error("Shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}

	sm.mu.Lock()
	sm.state = ShutdownStateComplete
	sm.mu.Unlock()
	close(sm.completionChan)

	sm.logger.Info("Shutdown complete", "reason", reason, "duration", time.Since(start))

	if len(errs) > 0 {
		return types.WrapError(types.ErrCodeInternal,
			fmt.Sprintf("%d shutdown hook(s) failed", len(errs)), errors.Join(errs...))
	}
	return nil
}

func (sm *ShutdownManager) runHook(ctx context.Context, h namedHook) error {
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.ErrCodeCanceled, "shutdown deadline exceeded before hook ran", err)
	}
	hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	sm.logger.Debug("Executing shutdown hook", "hook", h.name)
	return h.fn(hookCtx)
}

// Done is closed once shutdown completes
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.completionChan
}

// WaitCompletion waits for shutdown to complete
func (sm *ShutdownManager) WaitCompletion(ctx context.Context) error {
	select {
	case <-sm.completionChan:
		return nil
	case <-ctx.Done():
		return types.WrapError(types.ErrCodeCanceled, "wait for completion canceled", ctx.Err())
	}
}

// State returns the current shutdown state
func (sm *ShutdownManager) State() ShutdownState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// IsShuttingDown returns true if shutdown has been initiated
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.State() != ShutdownStateRunning
}

// Reason returns the reason given for shutdown
func (sm *ShutdownManager) Reason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.reason
}

// handleSignals handles incoming shutdown signals
func (sm *ShutdownManager) handleSignals() {
	for {
		select {
		case sig := <-sm.signalChan:
			sm.logger.Info("Shutdown signal received", "signal", sig.String())
			go func() {
				if err := sm.Shutdown(context.Background(), "signal received: "+sig.String()); err != nil &&
					!types.IsErrCode(err, types.ErrCodeInvalid) {
					sm.logger.Error("Shutdown failed", "error", err)
				}
			}()

		case <-sm.stopCtx.Done():
			return
		}
	}
}

// String returns a string representation of the shutdown state
func (s ShutdownState) String() string {
	return string(s)
}

// String returns a string representation of the shutdown manager
func (sm *ShutdownManager) String() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return fmt.Sprintf("ShutdownManager{state: %s, timeout: %v, hooks: %d, started: %t}",
		sm.state, sm.timeout, len(sm.hooks), sm.started)
}
