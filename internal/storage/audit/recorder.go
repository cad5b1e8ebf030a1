// Package audit records session accesses to the backend's audit log.
//
// Recording is best effort: a failed append is counted and logged but
// never returned to the caller, so an audit outage cannot fail or roll
// back the operation being audited.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/clinvault/internal/core/domain"
)

// DefaultLimit caps Log and ByActor when the caller passes limit <= 0.
const DefaultLimit = 100

// MaxLimit is the largest page Log and ByActor return.
const MaxLimit = 1000

// Store is the subset of the backend the recorder needs.
type Store interface {
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) (int64, error)
	ListAuditBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error)
	ListAuditByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error)
}

// Config configures a Recorder.
type Config struct {
	Logger *slog.Logger

	// FailureLogEvery is the minimum spacing of failure log lines once the
	// burst is spent. Default one per second.
	FailureLogEvery time.Duration

	// FailureLogBurst is how many failures are logged back to back.
	// Default 5.
	FailureLogBurst int

	// Now stamps entries that arrive without a timestamp.
	Now func() time.Time
}

// Outcomes counts recording results since the recorder was created.
type Outcomes struct {
	Written uint64
	Failed  uint64
	// Suppressed counts failures whose log line was dropped by the rate limit.
	Suppressed uint64
}

// Recorder appends audit entries. Safe for concurrent use.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	limiter *rate.Limiter

	written    atomic.Uint64
	failed     atomic.Uint64
	suppressed atomic.Uint64
}

// New creates a recorder writing to store.
func New(store Store, cfg Config) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FailureLogEvery <= 0 {
		cfg.FailureLogEvery = time.Second
	}
	if cfg.FailureLogBurst <= 0 {
		cfg.FailureLogBurst = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Recorder{
		store:   store,
		logger:  cfg.Logger,
		now:     cfg.Now,
		limiter: rate.NewLimiter(rate.Every(cfg.FailureLogEvery), cfg.FailureLogBurst),
	}
}

// Record appends exactly one entry. It never returns an error and never
// panics; failures show up in Outcomes and the log.
func (r *Recorder) Record(ctx context.Context, entry *domain.AuditEntry) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(entry, fmt.Errorf("audit append panicked: %v", p))
		}
	}()

	if entry == nil {
		r.fail(nil, domain.ErrValidation.WithDetails("nil audit entry"))
		return
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = r.now().UnixMilli()
	}
	if err := entry.Validate(); err != nil {
		r.fail(entry, err)
		return
	}

	id, err := r.store.AppendAudit(ctx, entry)
	if err != nil {
		r.fail(entry, err)
		return
	}
	entry.ID = id
	r.written.Add(1)
}

func (r *Recorder) fail(entry *domain.AuditEntry, err error) {
	r.failed.Add(1)
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}

	attrs := []any{"error", err}
	if entry != nil {
		attrs = append(attrs,
			"session_id", entry.SessionID,
			"action", string(entry.Action),
			"actor", entry.ActorID)
	}
	r.logger.Error("audit write failed", attrs...)
}

// Log returns the newest entries for sessionID, newest first.
func (r *Recorder) Log(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("session_id is required")
	}
	return r.store.ListAuditBySession(ctx, sessionID, clampLimit(limit))
}

// ByActor returns the newest entries written by actorID, newest first.
func (r *Recorder) ByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error) {
	if actorID == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("actor_id is required")
	}
	return r.store.ListAuditByActor(ctx, actorID, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Outcomes returns the current counters.
func (r *Recorder) Outcomes() Outcomes {
	return Outcomes{
		Written:    r.written.Load(),
		Failed:     r.failed.Load(),
		Suppressed: r.suppressed.Load(),
	}
}
