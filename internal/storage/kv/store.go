package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
)

// Store is the Badger backend.Backend.
type Store struct {
	db       *badger.DB
	cfg      Config
	logger   *slog.Logger
	auditSeq *badger.Sequence

	// writeMu serializes update transactions; conflict detection is off.
	writeMu sync.Mutex

	lastGCTime atomic.Int64  // Unix milliseconds
	gcRuns     atomic.Uint64 // value log files rewritten

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

var _ backend.Backend = (*Store)(nil)

// Open opens (creating if needed) the Badger store in cfg.Dir and starts
// the value log GC loop.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, domain.ErrConfiguration.WithDetails("kv dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = false
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = cfg.NumLevelZeroTables
	}
	if cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = cfg.NumLevelZeroTablesStall
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open badger db", err)
	}

	seq, err := db.GetSequence(keyAuditSeq, 64)
	if err != nil {
		_ = db.Close()
		return nil, storageErr("audit sequence", err)
	}

	s := &Store{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		auditSeq: seq,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go s.gcLoop()

	logger.Info("kv store opened",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"gc_interval", cfg.GCInterval)
	return s, nil
}

// Kind implements backend.Backend.
func (s *Store) Kind() backend.Kind { return backend.KindKV }

// Durable implements backend.Backend.
func (s *Store) Durable() bool { return true }

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(fn)
}

func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrClosed) {
		return err
	}
	return domain.ErrStorage.WithDetails(op).WithCause(err)
}

// getJSON decodes the value at key into v. It reports false when the key
// does not exist.
func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

// scanIndex calls fn with the id suffix of every key under p.
func scanIndex(txn *badger.Txn, p []byte, fn func(id []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		id := indexedID(it.Item().KeyCopy(nil), p)
		if id == nil {
			continue
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// GC runs value log GC until Badger reports nothing left to rewrite and
// returns the number of rewrites.
func (s *Store) GC() (int, error) {
	if s.closed.Load() {
		return 0, domain.ErrClosed
	}
	start := time.Now()

	runs := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return runs, fmt.Errorf("kv: value log gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRuns.Add(uint64(runs))
	s.logger.Debug("kv gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return runs, nil
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.GC(); err != nil {
				s.logger.Error("kv auto gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stats is a point-in-time view of on-disk usage.
type Stats struct {
	LSMSize      int64
	ValueLogSize int64
	LastGCTime   int64 // Unix milliseconds, 0 if never
	GCRewrites   uint64
}

// Stats returns the current on-disk usage.
func (s *Store) Stats() Stats {
	lsm, vlog := s.db.Size()
	return Stats{
		LSMSize:      lsm,
		ValueLogSize: vlog,
		LastGCTime:   s.lastGCTime.Load(),
		GCRewrites:   s.gcRuns.Load(),
	}
}

// RegisterMetrics exposes Badger disk usage and GC activity on reg.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	const ns, sub = "clinvault", "kv"
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "lsm_size_bytes",
			Help: "Badger LSM tree size in bytes.",
		}, func() float64 { return float64(s.Stats().LSMSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "value_log_size_bytes",
			Help: "Badger value log size in bytes.",
		}, func() float64 { return float64(s.Stats().ValueLogSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "last_gc_timestamp_seconds",
			Help: "Unix time of the last value log GC run.",
		}, func() float64 { return float64(s.lastGCTime.Load()) / 1000 }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "gc_rewrites_total",
			Help: "Value log files rewritten by GC.",
		}, func() float64 { return float64(s.gcRuns.Load()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("kv: register metrics: %w", err)
		}
	}
	return nil
}

// Backup writes a full Badger backup stream to w and returns the version
// it covers.
func (s *Store) Backup(w io.Writer) (uint64, error) {
	if s.closed.Load() {
		return 0, domain.ErrClosed
	}
	v, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, storageErr("backup", err)
	}
	return v, nil
}

// Close implements backend.Backend.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.auditSeq.Release(); err != nil {
		s.logger.Warn("kv release audit sequence failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return storageErr("close badger db", err)
	}
	s.logger.Info("kv store closed")
	return nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger's info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
