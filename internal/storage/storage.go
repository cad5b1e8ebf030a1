package storage

import (
	"context"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/audit"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/cache"
)

// Backend is the persistent store contract.
type Backend = backend.Backend

// Storage is the storage surface consumed by the application.
type Storage interface {
	// Initialize selects the backend and prepares the engine. It must be
	// called before any other operation and is idempotent.
	Initialize(ctx context.Context) error

	SaveSession(ctx context.Context, s *domain.Session) error
	// LoadSession returns (nil, nil) when the session does not exist.
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessionsByUser(ctx context.Context, opts ListOptions) (*SessionPage, error)
	// DeleteSession succeeds when the session does not exist.
	DeleteSession(ctx context.Context, id string) error

	SaveFile(ctx context.Context, f *domain.ClinicalFile) error
	GetFile(ctx context.Context, id string) (*domain.ClinicalFile, error)
	GetFilesBySession(ctx context.Context, sessionID string) ([]*domain.ClinicalFile, error)
	DeleteFile(ctx context.Context, id string) error

	SaveRecord(ctx context.Context, r *domain.ClinicalRecord) error
	GetRecord(ctx context.Context, id string) (*domain.ClinicalRecord, error)
	GetRecordsByPatient(ctx context.Context, patientID string) ([]*domain.ClinicalRecord, error)

	GetAuditLog(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error)
	GetAuditLogByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error)

	IsDegraded() bool
	LastInitError() error
	StorageStats() Stats

	Close() error
}

// ListOptions selects one page of a user's sessions.
type ListOptions struct {
	UserID string
	// PageSize defaults to 20 and is capped at 200.
	PageSize int
	// PageToken is the NextPageToken of the previous page, empty for the first.
	PageToken string
	// SortBy is "updated_at" (default) or "created_at".
	SortBy backend.SortField
	// SortOrder is "desc" (default) or "asc".
	SortOrder backend.SortOrder
}

// SessionPage is one page of sessions.
type SessionPage struct {
	Sessions      []*domain.Session
	NextPageToken string
	Total         int
}

// Stats describes the engine state.
type Stats struct {
	Backend  backend.Kind
	Durable  bool
	Degraded bool

	// KeyFingerprint identifies the active encryption key.
	KeyFingerprint string

	CacheSize        int
	CacheCapacity    int
	CacheUtilization float64
	Cache            cache.Stats

	Audit audit.Outcomes
}
