// Package backend defines the persistent store contract shared by the
// sqlite, kv and memory implementations.
//
// Rows carry an opaque sealed payload plus the denormalized, non-sensitive
// columns the indexes need. Implementations never inspect payload bytes.
package backend

import (
	"context"
	"io"

	"github.com/yndnr/clinvault/internal/core/domain"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindKV     Kind = "kv"
	KindMemory Kind = "memory"
)

// SessionRow is the stored form of a session.
type SessionRow struct {
	ID           string
	UserID       string
	PatientID    string
	Payload      []byte
	MessageCount int
	TokenCount   int64
	CreatedAt    int64
	UpdatedAt    int64
}

// FileRow is the stored form of a clinical file.
type FileRow struct {
	ID        string
	SessionID string
	Payload   []byte
	Size      int64
	MediaType string
	CreatedAt int64
}

// RecordRow is the stored form of a clinical record.
type RecordRow struct {
	ID        string
	PatientID string
	Payload   []byte
	Version   int
	CreatedAt int64
	UpdatedAt int64
}

// Backend is a persistent store. Implementations must be safe for
// concurrent use; every write is a single atomic upsert or delete.
type Backend interface {
	// PutSession inserts or replaces a session and reports whether the row
	// was newly created.
	PutSession(ctx context.Context, row SessionRow) (created bool, err error)
	// GetSession returns (nil, nil) when the session does not exist.
	GetSession(ctx context.Context, id string) (*SessionRow, error)
	// DeleteSession reports whether a row was removed.
	DeleteSession(ctx context.Context, id string) (deleted bool, err error)
	ListSessionsByUser(ctx context.Context, q ListQuery) (*RowPage, error)

	PutFile(ctx context.Context, row FileRow) error
	// GetFile returns (nil, nil) when the file does not exist.
	GetFile(ctx context.Context, id string) (*FileRow, error)
	// ListFilesBySession returns files oldest first.
	ListFilesBySession(ctx context.Context, sessionID string) ([]FileRow, error)
	DeleteFile(ctx context.Context, id string) (deleted bool, err error)

	PutRecord(ctx context.Context, row RecordRow) error
	// GetRecord returns (nil, nil) when the record does not exist.
	GetRecord(ctx context.Context, id string) (*RecordRow, error)
	// ListRecordsByPatient returns records newest UpdatedAt first.
	ListRecordsByPatient(ctx context.Context, patientID string) ([]RecordRow, error)

	// AppendAudit stores entry and returns the assigned ID.
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) (int64, error)
	// ListAuditBySession returns at most limit entries, newest first.
	ListAuditBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error)
	// ListAuditByActor returns at most limit entries, newest first.
	ListAuditByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error)

	Kind() Kind
	// Durable reports whether data survives a process restart.
	Durable() bool
	Close() error
}

// Backuper is implemented by backends that can stream a full backup.
type Backuper interface {
	// Backup writes the backup to w and returns the version it covers.
	Backup(w io.Writer) (uint64, error)
}
