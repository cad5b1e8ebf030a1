package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/pkg/cmap"
)

// Store is the in-memory backend.Backend.
type Store struct {
	// Primary indexes: ID -> row
	sessions *cmap.Map[string, backend.SessionRow]
	files    *cmap.Map[string, backend.FileRow]
	records  *cmap.Map[string, backend.RecordRow]

	// Secondary indexes
	byUser    *Index // UserID -> session IDs
	bySession *Index // SessionID -> file IDs
	byPatient *Index // PatientID -> record IDs

	// Guards operations that touch a primary map and its index together.
	mu sync.Mutex

	auditMu      sync.RWMutex
	audit        []*domain.AuditEntry
	auditSession map[string][]int
	auditActor   map[string][]int

	closed atomic.Bool
}

var _ backend.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions:     cmap.New[string, backend.SessionRow](),
		files:        cmap.New[string, backend.FileRow](),
		records:      cmap.New[string, backend.RecordRow](),
		byUser:       NewIndex(),
		bySession:    NewIndex(),
		byPatient:    NewIndex(),
		auditSession: make(map[string][]int),
		auditActor:   make(map[string][]int),
	}
}

// Kind implements backend.Backend.
func (s *Store) Kind() backend.Kind { return backend.KindMemory }

// Durable implements backend.Backend.
func (s *Store) Durable() bool { return false }

// PutSession implements backend.Backend.
func (s *Store) PutSession(_ context.Context, row backend.SessionRow) (bool, error) {
	if s.closed.Load() {
		return false, domain.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, loaded := s.sessions.Swap(row.ID, row.Clone())
	if loaded && prev.UserID != row.UserID {
		s.byUser.Remove(prev.UserID, row.ID)
	}
	s.byUser.Add(row.UserID, row.ID)
	return !loaded, nil
}

// GetSession implements backend.Backend.
func (s *Store) GetSession(_ context.Context, id string) (*backend.SessionRow, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	row, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	clone := row.Clone()
	return &clone, nil
}

// DeleteSession implements backend.Backend.
func (s *Store) DeleteSession(_ context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, domain.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions.Pop(id)
	if !ok {
		return false, nil
	}
	s.byUser.Remove(row.UserID, id)
	return true, nil
}

// ListSessionsByUser implements backend.Backend.
func (s *Store) ListSessionsByUser(_ context.Context, q backend.ListQuery) (*backend.RowPage, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	q, offset, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	ids := s.byUser.Get(q.UserID)
	rows := make([]backend.SessionRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.sessions.Get(id); ok && row.UserID == q.UserID {
			rows = append(rows, row.Clone())
		}
	}
	return backend.PageOf(rows, q, offset), nil
}

// PutFile implements backend.Backend.
func (s *Store) PutFile(_ context.Context, row backend.FileRow) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, loaded := s.files.Swap(row.ID, row.Clone())
	if loaded && prev.SessionID != row.SessionID {
		s.bySession.Remove(prev.SessionID, row.ID)
	}
	s.bySession.Add(row.SessionID, row.ID)
	return nil
}

// GetFile implements backend.Backend.
func (s *Store) GetFile(_ context.Context, id string) (*backend.FileRow, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	row, ok := s.files.Get(id)
	if !ok {
		return nil, nil
	}
	clone := row.Clone()
	return &clone, nil
}

// ListFilesBySession implements backend.Backend.
func (s *Store) ListFilesBySession(_ context.Context, sessionID string) ([]backend.FileRow, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	ids := s.bySession.Get(sessionID)
	rows := make([]backend.FileRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.files.Get(id); ok {
			rows = append(rows, row.Clone())
		}
	}
	backend.SortFiles(rows)
	return rows, nil
}

// DeleteFile implements backend.Backend.
func (s *Store) DeleteFile(_ context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, domain.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.files.Pop(id)
	if !ok {
		return false, nil
	}
	s.bySession.Remove(row.SessionID, id)
	return true, nil
}

// PutRecord implements backend.Backend.
func (s *Store) PutRecord(_ context.Context, row backend.RecordRow) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, loaded := s.records.Swap(row.ID, row.Clone())
	if loaded && prev.PatientID != row.PatientID {
		s.byPatient.Remove(prev.PatientID, row.ID)
	}
	s.byPatient.Add(row.PatientID, row.ID)
	return nil
}

// GetRecord implements backend.Backend.
func (s *Store) GetRecord(_ context.Context, id string) (*backend.RecordRow, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	row, ok := s.records.Get(id)
	if !ok {
		return nil, nil
	}
	clone := row.Clone()
	return &clone, nil
}

// ListRecordsByPatient implements backend.Backend.
func (s *Store) ListRecordsByPatient(_ context.Context, patientID string) ([]backend.RecordRow, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	ids := s.byPatient.Get(patientID)
	rows := make([]backend.RecordRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.records.Get(id); ok {
			rows = append(rows, row.Clone())
		}
	}
	backend.SortRecords(rows)
	return rows, nil
}

// AppendAudit implements backend.Backend.
func (s *Store) AppendAudit(_ context.Context, entry *domain.AuditEntry) (int64, error) {
	if s.closed.Load() {
		return 0, domain.ErrClosed
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	stored := entry.Clone()
	stored.ID = int64(len(s.audit) + 1)
	pos := len(s.audit)
	s.audit = append(s.audit, stored)
	s.auditSession[stored.SessionID] = append(s.auditSession[stored.SessionID], pos)
	if stored.ActorID != "" {
		s.auditActor[stored.ActorID] = append(s.auditActor[stored.ActorID], pos)
	}
	return stored.ID, nil
}

// ListAuditBySession implements backend.Backend.
func (s *Store) ListAuditBySession(_ context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	return s.collectAudit(s.auditSession[sessionID], limit), nil
}

// ListAuditByActor implements backend.Backend.
func (s *Store) ListAuditByActor(_ context.Context, actorID string, limit int) ([]*domain.AuditEntry, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	return s.collectAudit(s.auditActor[actorID], limit), nil
}

func (s *Store) collectAudit(positions []int, limit int) []*domain.AuditEntry {
	out := make([]*domain.AuditEntry, 0, len(positions))
	for _, pos := range positions {
		out = append(out, s.audit[pos].Clone())
	}
	return backend.SortAudit(out, limit)
}

// Close implements backend.Backend. Data is discarded.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
