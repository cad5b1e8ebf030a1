package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite backend.Backend.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ backend.Backend = (*Store)(nil)

// DSN builds the connection string for path with the pragmas the store
// relies on.
func DSN(path string) string {
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(ON)",
		"_txlock=immediate",
	}
	return "file:" + filepath.ToSlash(path) + "?" + strings.Join(pragmas, "&")
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.ErrConfiguration.WithDetails("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, storageErr("create data dir", err)
	}

	db, err := sql.Open("sqlite", DSN(cleanPath))
	if err != nil {
		return nil, storageErr("open sqlite db", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("ping sqlite db", err)
	}

	s := &Store{db: db, path: cleanPath, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cleanPath)
	return s, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return storageErr("init migrations", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return storageErr("apply migrations", err)
	}
	for _, r := range results {
		s.logger.Info("sqlite migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"elapsed", r.Duration)
	}
	return nil
}

// Path returns the database file path, empty for NewWithDB stores.
func (s *Store) Path() string { return s.path }

// Kind implements backend.Backend.
func (s *Store) Kind() backend.Kind { return backend.KindSQLite }

// Durable implements backend.Backend.
func (s *Store) Durable() bool { return true }

// Close implements backend.Backend.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return storageErr("close sqlite db", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return domain.ErrStorage.WithDetails(op).WithCause(err)
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("sqlite rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sqliteLimit maps "no limit" (<= 0) to SQLite's -1.
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
