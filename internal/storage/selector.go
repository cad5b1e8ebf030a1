package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/kv"
	"github.com/yndnr/clinvault/internal/storage/memory"
	"github.com/yndnr/clinvault/internal/storage/sqlite"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// BackendAuto picks sqlite when the data directory is writable and memory
// otherwise.
const BackendAuto = "auto"

// Defaults for Options.
const (
	DefaultDataDir    = "data"
	DefaultSQLiteFile = "clinvault.db"
	DefaultKVDir      = "kv"
)

// Options configures backend selection.
type Options struct {
	// Backend is "sqlite", "kv", "memory" or "auto" (default).
	Backend string

	DataDir string

	// SQLiteFile and KVDir are relative to DataDir unless absolute.
	SQLiteFile string
	KVDir      string

	// KV tunes the Badger backend. Dir is set from KVDir.
	KV kv.Config

	// EncryptionKey is the base64 32-byte key.
	EncryptionKey string

	// Environment is "production" or anything else (development).
	Environment string

	Logger *slog.Logger

	// Registerer receives backend specific metrics. Optional.
	Registerer prometheus.Registerer
}

func (o Options) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.DataDir, name)
}

// Factory opens one kind of durable backend.
type Factory func(ctx context.Context, opts Options) (backend.Backend, error)

// Selection is the outcome of Selector.Open.
type Selection struct {
	Backend   backend.Backend
	Cipher    sealer.Cipher
	KeySource sealer.KeySource
	// Fingerprint identifies the key without revealing it.
	Fingerprint string

	Degraded bool
	InitErr  error
}

// Selector builds the configured backend and falls back to the ephemeral
// backend when the durable one cannot be opened.
type Selector struct {
	opts      Options
	logger    *slog.Logger
	factories map[backend.Kind]Factory

	mu       sync.RWMutex
	degraded bool
	lastErr  error
}

// NewSelector creates a selector with the sqlite and kv factories.
func NewSelector(opts Options) *Selector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DataDir == "" {
		opts.DataDir = DefaultDataDir
	}
	if opts.SQLiteFile == "" {
		opts.SQLiteFile = DefaultSQLiteFile
	}
	if opts.KVDir == "" {
		opts.KVDir = DefaultKVDir
	}

	return &Selector{
		opts:   opts,
		logger: opts.Logger,
		factories: map[backend.Kind]Factory{
			backend.KindSQLite: openSQLite,
			backend.KindKV:     openKV,
		},
	}
}

// Register replaces the factory for kind.
func (s *Selector) Register(kind backend.Kind, f Factory) {
	s.factories[kind] = f
}

func openSQLite(ctx context.Context, opts Options) (backend.Backend, error) {
	return sqlite.Open(ctx, opts.path(opts.SQLiteFile), opts.Logger)
}

func openKV(_ context.Context, opts Options) (backend.Backend, error) {
	cfg := opts.KV
	if cfg == (kv.Config{}) {
		cfg = kv.DefaultConfig("")
	}
	cfg.Dir = opts.path(opts.KVDir)
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, domain.ErrStorage.WithDetails("create kv dir").WithCause(err)
	}

	store, err := kv.Open(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.Registerer != nil {
		if err := store.RegisterMetrics(opts.Registerer); err != nil {
			opts.Logger.Warn("kv metrics not registered", "error", err)
		}
	}
	return store, nil
}

// Kind resolves the configured backend name, probing the data directory
// for "auto".
func (s *Selector) Kind() (backend.Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s.opts.Backend))
	switch name {
	case "", BackendAuto:
		if err := probeWritable(s.opts.DataDir); err != nil {
			s.logger.Warn("data dir not writable, selecting memory backend",
				"data_dir", s.opts.DataDir, "error", err)
			return backend.KindMemory, nil
		}
		return backend.KindSQLite, nil
	case string(backend.KindSQLite), string(backend.KindKV), string(backend.KindMemory):
		return backend.Kind(name), nil
	}
	return "", domain.ErrConfiguration.WithDetails("unknown storage backend " + s.opts.Backend)
}

func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Open builds the backend and cipher. It only fails when even the
// ephemeral fallback cannot be set up.
func (s *Selector) Open(ctx context.Context) (*Selection, error) {
	sel, err := s.open(ctx)
	if err == nil {
		s.setState(false, nil)
		return sel, nil
	}
	return s.fallback(err)
}

func (s *Selector) open(ctx context.Context) (*Selection, error) {
	kind, err := s.Kind()
	if err != nil {
		return nil, err
	}

	key, source, err := sealer.ResolveKey(s.opts.EncryptionKey, s.opts.Environment, s.logger)
	if err != nil {
		return nil, err
	}
	c, err := newVerifiedCipher(key)
	if err != nil {
		return nil, err
	}

	var b backend.Backend
	if kind == backend.KindMemory {
		b = memory.New()
	} else {
		factory, ok := s.factories[kind]
		if !ok {
			return nil, domain.ErrConfiguration.WithDetails("no factory for backend " + string(kind))
		}
		if b, err = factory(ctx, s.opts); err != nil {
			return nil, fmt.Errorf("open %s backend: %w", kind, err)
		}
	}

	s.logger.Info("storage backend selected",
		"backend", string(kind),
		"durable", b.Durable(),
		"key_source", string(source),
		"key_fingerprint", sealer.Fingerprint(key))

	return &Selection{
		Backend:     b,
		Cipher:      c,
		KeySource:   source,
		Fingerprint: sealer.Fingerprint(key),
	}, nil
}

func newVerifiedCipher(key []byte) (sealer.Cipher, error) {
	c, err := sealer.New(key)
	if err != nil {
		return nil, err
	}
	if err := sealer.VerifyEncryptionSetup(c); err != nil {
		return nil, err
	}
	return c, nil
}

// fallback serves from memory under a random process-local key.
func (s *Selector) fallback(cause error) (*Selection, error) {
	s.logger.Error("durable storage unavailable, falling back to ephemeral memory backend",
		"backend", s.opts.Backend,
		"error", cause)

	key, err := sealer.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("storage: fallback key: %w", err)
	}
	c, err := newVerifiedCipher(key)
	if err != nil {
		return nil, fmt.Errorf("storage: fallback cipher: %w", err)
	}

	s.setState(true, cause)
	return &Selection{
		Backend:     memory.New(),
		Cipher:      c,
		KeySource:   sealer.SourceEphemeral,
		Fingerprint: sealer.Fingerprint(key),
		Degraded:    true,
		InitErr:     cause,
	}, nil
}

func (s *Selector) setState(degraded bool, err error) {
	s.mu.Lock()
	s.degraded, s.lastErr = degraded, err
	s.mu.Unlock()
}

// IsDegraded reports whether the last Open fell back to memory.
func (s *Selector) IsDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// LastInitError returns the error that caused the fallback, or nil.
func (s *Selector) LastInitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
