package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/audit"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/cache"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
	"github.com/yndnr/clinvault/internal/telemetry/metric"
	"github.com/yndnr/clinvault/internal/telemetry/tracer"
)

// Config configures the Engine.
type Config struct {
	Cache cache.Config
	Audit audit.Config

	Logger *slog.Logger

	// Metrics records per-operation counters and latency. Optional.
	Metrics *metric.StorageOps

	// Now stamps entities and audit entries. Defaults to time.Now.
	Now func() time.Time
}

// Engine implements Storage.
type Engine struct {
	sel     *Selector
	cfg     Config
	logger  *slog.Logger
	metrics *metric.StorageOps
	now     func() time.Time

	initMu sync.Mutex
	st     atomic.Pointer[state]
	closed atomic.Bool
}

// state is everything Initialize builds.
type state struct {
	sel     *Selection
	backend backend.Backend
	codec   codec
	cache   *cache.Cache
	audit   *audit.Recorder
}

var _ Storage = (*Engine)(nil)

// NewEngine creates an engine that opens its backend through sel on
// Initialize.
func NewEngine(sel *Selector, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		sel:     sel,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Initialize implements Storage.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.closed.Load() {
		return domain.ErrClosed
	}
	if e.st.Load() != nil {
		return nil
	}

	sel, err := e.sel.Open(ctx)
	if err != nil {
		return err
	}

	cacheCfg := e.cfg.Cache
	if cacheCfg.Logger == nil {
		cacheCfg.Logger = e.logger
	}
	if cacheCfg.Now == nil {
		cacheCfg.Now = e.now
	}
	auditCfg := e.cfg.Audit
	if auditCfg.Logger == nil {
		auditCfg.Logger = e.logger
	}
	if auditCfg.Now == nil {
		auditCfg.Now = e.now
	}

	st := &state{
		sel:     sel,
		backend: sel.Backend,
		codec:   codec{cipher: sel.Cipher},
		cache:   cache.New(cacheCfg),
		audit:   audit.New(sel.Backend, auditCfg),
	}
	st.cache.Start()
	e.st.Store(st)

	e.logger.Info("storage engine initialized",
		"backend", string(st.backend.Kind()),
		"durable", st.backend.Durable(),
		"degraded", sel.Degraded,
		"cache_capacity", st.cache.Capacity(),
		"cache_ttl", st.cache.TTL())
	return nil
}

func (e *Engine) ready() (*state, error) {
	if e.closed.Load() {
		return nil, domain.ErrClosed
	}
	st := e.st.Load()
	if st == nil {
		return nil, domain.ErrNotInitialized
	}
	return st, nil
}

// begin starts the span and returns the finisher that records the outcome.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "storage."+op, attrs...)
	return ctx, func(errp *error) {
		e.metrics.Observe(op, start, *errp)
		tracer.End(span, *errp)
	}
}

func (e *Engine) record(ctx context.Context, st *state, sessionID string, action domain.AuditAction, owner string, meta map[string]string) {
	actor := ActorFromContext(ctx)
	if actor == "" {
		actor = owner
	}
	entry := domain.NewAuditEntry(sessionID, action, actor)
	entry.Timestamp = e.now().UnixMilli()
	entry.Metadata = meta
	st.audit.Record(ctx, entry)
}

// SaveSession implements Storage. The session's timestamps are stamped in
// place. If the backend write fails the cache is restored to its state
// before the call and the error is returned.
func (e *Engine) SaveSession(ctx context.Context, s *domain.Session) (err error) {
	if s == nil {
		return domain.ErrInvalidArgument.WithDetails("session is nil")
	}
	ctx, done := e.begin(ctx, "save_session", attribute.String("session.id", s.ID))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return err
	}

	now := e.now().UnixMilli()
	if s.Metadata.CreatedAt == 0 {
		s.Metadata.CreatedAt = now
	}
	s.Metadata.UpdatedAt = now
	if err := s.Validate(); err != nil {
		return err
	}

	row, err := st.codec.sessionRow(s)
	if err != nil {
		return err
	}

	undo := st.cache.Put(s)
	created, err := st.backend.PutSession(ctx, row)
	if err != nil {
		undo.Rollback()
		e.logger.ErrorContext(ctx, "session persist failed, cache rolled back", append(logger.Attrs(ctx),
			"session_id", s.ID,
			"backend", string(st.backend.Kind()),
			"error", err)...)
		return err
	}

	action := domain.AuditUpdate
	if created {
		action = domain.AuditCreate
	}
	e.record(ctx, st, s.ID, action, s.UserID, nil)
	return nil
}

// LoadSession implements Storage. An integrity failure is returned as
// domain.ErrIntegrity and the session is not cached.
func (e *Engine) LoadSession(ctx context.Context, id string) (_ *domain.Session, err error) {
	ctx, done := e.begin(ctx, "load_session", attribute.String("session.id", id))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("session id is required")
	}

	if s := st.cache.Get(id); s != nil {
		e.record(ctx, st, id, domain.AuditRead, s.UserID, map[string]string{"source": "cache"})
		return s, nil
	}

	epoch := st.cache.Epoch()
	row, err := st.backend.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	s, err := st.codec.session(row)
	if err != nil {
		e.logger.ErrorContext(ctx, "session payload rejected", append(logger.Attrs(ctx), "session_id", id, "error", err)...)
		return nil, err
	}

	st.cache.Fill(s, epoch)
	e.record(ctx, st, id, domain.AuditRead, s.UserID, map[string]string{"source": "backend"})
	return s, nil
}

// ListSessionsByUser implements Storage. Listing neither warms the cache
// nor writes audit entries.
func (e *Engine) ListSessionsByUser(ctx context.Context, opts ListOptions) (_ *SessionPage, err error) {
	ctx, done := e.begin(ctx, "list_sessions")
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}

	rp, err := st.backend.ListSessionsByUser(ctx, backend.ListQuery{
		UserID:    opts.UserID,
		PageSize:  opts.PageSize,
		PageToken: opts.PageToken,
		SortBy:    opts.SortBy,
		SortOrder: opts.SortOrder,
	})
	if err != nil {
		return nil, err
	}

	page := &SessionPage{
		Sessions:      make([]*domain.Session, 0, len(rp.Rows)),
		NextPageToken: rp.NextPageToken,
		Total:         rp.Total,
	}
	for i := range rp.Rows {
		s, err := st.codec.session(&rp.Rows[i])
		if err != nil {
			return nil, err
		}
		page.Sessions = append(page.Sessions, s)
	}
	return page, nil
}

// DeleteSession implements Storage.
func (e *Engine) DeleteSession(ctx context.Context, id string) (err error) {
	ctx, done := e.begin(ctx, "delete_session", attribute.String("session.id", id))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return err
	}
	if id == "" {
		return domain.ErrInvalidArgument.WithDetails("session id is required")
	}

	owner := ""
	if ActorFromContext(ctx) == "" {
		owner, err = e.ownerOf(ctx, st, id)
		if err != nil {
			return err
		}
	}

	st.cache.Invalidate(id)
	deleted, err := st.backend.DeleteSession(ctx, id)
	// A load racing the delete may have refilled the entry.
	st.cache.Invalidate(id)
	if err != nil {
		return err
	}
	if deleted {
		e.record(ctx, st, id, domain.AuditDelete, owner, nil)
	}
	return nil
}

// ownerOf reads the owner from the cache or the row's plaintext owner
// column, without decrypting.
func (e *Engine) ownerOf(ctx context.Context, st *state, id string) (string, error) {
	if s := st.cache.Peek(id); s != nil {
		return s.UserID, nil
	}
	row, err := st.backend.GetSession(ctx, id)
	if err != nil || row == nil {
		return "", err
	}
	return row.UserID, nil
}

// SaveFile implements Storage.
func (e *Engine) SaveFile(ctx context.Context, f *domain.ClinicalFile) (err error) {
	if f == nil {
		return domain.ErrInvalidArgument.WithDetails("file is nil")
	}
	ctx, done := e.begin(ctx, "save_file", attribute.String("file.id", f.ID))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return err
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = e.now().UnixMilli()
	}
	if err := f.Validate(); err != nil {
		return err
	}

	row, err := st.codec.fileRow(f)
	if err != nil {
		return err
	}
	return st.backend.PutFile(ctx, row)
}

// GetFile implements Storage. It returns (nil, nil) when absent.
func (e *Engine) GetFile(ctx context.Context, id string) (_ *domain.ClinicalFile, err error) {
	ctx, done := e.begin(ctx, "get_file", attribute.String("file.id", id))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	row, err := st.backend.GetFile(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return st.codec.file(row)
}

// GetFilesBySession implements Storage. Files are returned oldest first.
func (e *Engine) GetFilesBySession(ctx context.Context, sessionID string) (_ []*domain.ClinicalFile, err error) {
	ctx, done := e.begin(ctx, "list_files", attribute.String("session.id", sessionID))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("session id is required")
	}

	rows, err := st.backend.ListFilesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ClinicalFile, 0, len(rows))
	for i := range rows {
		f, err := st.codec.file(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// DeleteFile implements Storage. Deleting a missing file is not an error.
func (e *Engine) DeleteFile(ctx context.Context, id string) (err error) {
	ctx, done := e.begin(ctx, "delete_file", attribute.String("file.id", id))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return err
	}
	_, err = st.backend.DeleteFile(ctx, id)
	return err
}

// SaveRecord implements Storage. Version is owned by the caller; a zero
// version is stored as 1.
func (e *Engine) SaveRecord(ctx context.Context, r *domain.ClinicalRecord) (err error) {
	if r == nil {
		return domain.ErrInvalidArgument.WithDetails("record is nil")
	}
	ctx, done := e.begin(ctx, "save_record", attribute.String("record.id", r.ID))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return err
	}

	now := e.now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Version == 0 {
		r.Version = 1
	}
	if err := r.Validate(); err != nil {
		return err
	}

	row, err := st.codec.recordRow(r)
	if err != nil {
		return err
	}
	return st.backend.PutRecord(ctx, row)
}

// GetRecord implements Storage. It returns (nil, nil) when absent.
func (e *Engine) GetRecord(ctx context.Context, id string) (_ *domain.ClinicalRecord, err error) {
	ctx, done := e.begin(ctx, "get_record", attribute.String("record.id", id))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	row, err := st.backend.GetRecord(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return st.codec.record(row)
}

// GetRecordsByPatient implements Storage. Records are returned newest
// UpdatedAt first.
func (e *Engine) GetRecordsByPatient(ctx context.Context, patientID string) (_ []*domain.ClinicalRecord, err error) {
	ctx, done := e.begin(ctx, "list_records")
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	if patientID == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("patient id is required")
	}

	rows, err := st.backend.ListRecordsByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ClinicalRecord, 0, len(rows))
	for i := range rows {
		r, err := st.codec.record(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetAuditLog implements Storage.
func (e *Engine) GetAuditLog(ctx context.Context, sessionID string, limit int) (_ []*domain.AuditEntry, err error) {
	ctx, done := e.begin(ctx, "audit_log", attribute.String("session.id", sessionID))
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	return st.audit.Log(ctx, sessionID, limit)
}

// GetAuditLogByActor implements Storage.
func (e *Engine) GetAuditLogByActor(ctx context.Context, actorID string, limit int) (_ []*domain.AuditEntry, err error) {
	ctx, done := e.begin(ctx, "audit_log_by_actor")
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return nil, err
	}
	return st.audit.ByActor(ctx, actorID, limit)
}

// Backup streams a full backup of the backend to w. Only backends that
// implement backend.Backuper support it.
func (e *Engine) Backup(ctx context.Context, w io.Writer) (_ uint64, err error) {
	_, done := e.begin(ctx, "backup")
	defer done(&err)

	st, err := e.ready()
	if err != nil {
		return 0, err
	}
	b, ok := st.backend.(backend.Backuper)
	if !ok {
		return 0, domain.ErrUnsupported.WithDetails("backup on " + string(st.backend.Kind()) + " backend")
	}
	return b.Backup(w)
}

// IsDegraded implements Storage.
func (e *Engine) IsDegraded() bool {
	return e.sel.IsDegraded()
}

// LastInitError implements Storage.
func (e *Engine) LastInitError() error {
	return e.sel.LastInitError()
}

// StorageStats implements Storage. Before Initialize only Degraded is set.
func (e *Engine) StorageStats() Stats {
	stats := Stats{Degraded: e.IsDegraded()}
	st := e.st.Load()
	if st == nil {
		return stats
	}

	cs := st.cache.Stats()
	stats.Backend = st.backend.Kind()
	stats.Durable = st.backend.Durable()
	stats.KeyFingerprint = st.sel.Fingerprint
	stats.CacheSize = cs.Size
	stats.CacheCapacity = cs.Capacity
	stats.CacheUtilization = cs.Utilization()
	stats.Cache = cs
	stats.Audit = st.audit.Outcomes()
	return stats
}

// MetricsSnapshot implements metric.StorageSource.
func (e *Engine) MetricsSnapshot() metric.StorageSnapshot {
	s := e.StorageStats()
	return metric.StorageSnapshot{
		Backend:          string(s.Backend),
		Degraded:         s.Degraded,
		CacheSize:        s.CacheSize,
		CacheCapacity:    s.CacheCapacity,
		CacheHits:        s.Cache.Hits,
		CacheMisses:      s.Cache.Misses,
		CacheEvictions:   s.Cache.Evictions,
		CacheExpirations: s.Cache.Expirations,
		AuditWritten:     s.Audit.Written,
		AuditFailed:      s.Audit.Failed,
		AuditSuppressed:  s.Audit.Suppressed,
	}
}

// Close implements Storage. It stops the cache sweeper and closes the
// backend. Calling Close more than once is safe.
func (e *Engine) Close() error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	st := e.st.Load()
	if st == nil {
		return nil
	}

	e.logger.Info("shutting down storage engine")
	st.cache.Stop()
	st.cache.Clear()
	if err := st.backend.Close(); err != nil {
		e.logger.Error("close storage backend failed", "error", err)
		return err
	}
	e.logger.Info("storage engine shutdown complete")
	return nil
}
