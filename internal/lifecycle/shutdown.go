// Package lifecycle manages graceful shutdown for the attache daemon:
// signal interception, root context cancellation, and ordered teardown
// of subsystems via named hooks.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownConfig configures the shutdown behavior.
type ShutdownConfig struct {
	GracePeriod  time.Duration // time shutdown hooks get to finish
	ForceTimeout time.Duration // hard os.Exit deadline once a signal arrives
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracePeriod:  10 * time.Second,
		ForceTimeout: 15 * time.Second,
	}
}

// Manager coordinates shutdown for the daemon process.
type Manager struct {
	config   ShutdownConfig
	logger   *slog.Logger
	cancel   context.CancelFunc
	mu       sync.Mutex
	hooks    []ShutdownHook
	started  time.Time
	shutdown bool
}

// ShutdownHook is called during graceful shutdown. Name is for logging.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NewManager creates a lifecycle manager.
func NewManager(config ShutdownConfig, logger *slog.Logger) *Manager {
	return &Manager{
		config:  config,
		logger:  logger,
		started: time.Now(),
	}
}

// OnShutdown registers a hook to run during graceful shutdown.
// Hooks run in registration order.
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, ShutdownHook{Name: name, Fn: fn})
}

// Run installs signal handlers, runs the main function with a
// cancellable root context, and handles shutdown. Returns the process
// exit code.
func (m *Manager) Run(mainFn func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mainFn(ctx)
	}()

	select {
	case sig := <-sigCh:
		m.logger.Info("received signal, starting graceful shutdown",
			"signal", sig.String(),
			"uptime", time.Since(m.started).String(),
		)
		return m.gracefulShutdown()

	case err := <-errCh:
		if err != nil {
			m.logger.Error("daemon exited with error", "error", err)
			m.runHooksQuick()
			return 1
		}
		m.runHooksQuick()
		return 0
	}
}

// gracefulShutdown cancels the root context and runs hooks with the
// grace period deadline. A watchdog force-exits the process if teardown
// wedges past ForceTimeout.
func (m *Manager) gracefulShutdown() int {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return 1
	}
	m.shutdown = true
	hooks := make([]ShutdownHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if m.config.ForceTimeout > 0 {
		forceTimer := time.AfterFunc(m.config.ForceTimeout, func() {
			m.logger.Error("shutdown exceeded force timeout, exiting",
				"timeout", m.config.ForceTimeout.String())
			os.Exit(1)
		})
		defer forceTimer.Stop()
	}

	// Cancel root context so all subsystems start winding down.
	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.GracePeriod)
	defer cancel()

	for _, hook := range hooks {
		m.logger.Info("running shutdown hook", "name", hook.Name)
		if err := hook.Fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", "name", hook.Name, "error", err)
		}
	}

	m.logger.Info("graceful shutdown complete",
		"uptime", time.Since(m.started).String(),
	)
	return 0
}

// runHooksQuick runs hooks with a short timeout (for normal exit).
func (m *Manager) runHooksQuick() {
	m.mu.Lock()
	hooks := make([]ShutdownHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, hook := range hooks {
		hook.Fn(ctx)
	}
}

// Uptime returns how long the process has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.started)
}
