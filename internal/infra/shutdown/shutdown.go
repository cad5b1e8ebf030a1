package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs named shutdown hooks after SIGINT, SIGTERM or Trigger.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger
	signals []os.Signal

	mu    sync.Mutex
	hooks []hook

	trigger     chan struct{}
	triggerOnce sync.Once
	done        chan struct{}
}

// NewHandler creates a handler whose hooks share a deadline of timeout.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers fn under name. Hooks run in reverse order of
// registration, so register in startup order.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
	h.mu.Unlock()
}

// Trigger starts shutdown without a signal, e.g. when a listener fails.
func (h *Handler) Trigger() {
	h.triggerOnce.Do(func() { close(h.trigger) })
}

// Wait blocks until a signal, Trigger or ctx cancellation, then runs the
// hooks. A failing hook does not stop the others; once the deadline has
// passed the remaining hooks are skipped. The errors are joined.
func (h *Handler) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)
	defer signal.Stop(sigCh)

	reason := "context done"
	select {
	case sig := <-sigCh:
		reason = sig.String()
	case <-h.trigger:
		reason = "triggered"
	case <-ctx.Done():
	}
	h.logger.Info("shutting down", "reason", reason, "timeout", h.timeout)

	return h.run()
}

// Done is closed once every hook has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

func (h *Handler) run() error {
	defer close(h.done)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := append([]hook(nil), h.hooks...)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", hk.name, ctx.Err()))
			continue
		}
		start := time.Now()
		if err := hk.fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hk.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hk.name, "elapsed", time.Since(start))
	}
	return errors.Join(errs...)
}
