package kv

import (
	"context"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
)

// PutSession implements backend.Backend.
func (s *Store) PutSession(_ context.Context, row backend.SessionRow) (bool, error) {
	var created bool
	err := s.update(func(txn *badger.Txn) error {
		var prev backend.SessionRow
		found, err := getJSON(txn, rowKey(prefixSession, row.ID), &prev)
		if err != nil {
			return err
		}
		created = !found
		if found && prev.UserID != row.UserID {
			if err := txn.Delete(indexKey(prefixUserIndex, prev.UserID, row.ID)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, rowKey(prefixSession, row.ID), row); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixUserIndex, row.UserID, row.ID), nil)
	})
	if err != nil {
		return false, storageErr("put session", err)
	}
	return created, nil
}

// GetSession implements backend.Backend.
func (s *Store) GetSession(_ context.Context, id string) (*backend.SessionRow, error) {
	var (
		row   backend.SessionRow
		found bool
	)
	err := s.view(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, rowKey(prefixSession, id), &row)
		return err
	})
	if err != nil {
		return nil, storageErr("get session", err)
	}
	if !found {
		return nil, nil
	}
	return &row, nil
}

// DeleteSession implements backend.Backend.
func (s *Store) DeleteSession(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := s.update(func(txn *badger.Txn) error {
		var prev backend.SessionRow
		found, err := getJSON(txn, rowKey(prefixSession, id), &prev)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(rowKey(prefixSession, id)); err != nil {
			return err
		}
		deleted = true
		return txn.Delete(indexKey(prefixUserIndex, prev.UserID, id))
	})
	if err != nil {
		return false, storageErr("delete session", err)
	}
	return deleted, nil
}

// ListSessionsByUser implements backend.Backend.
func (s *Store) ListSessionsByUser(_ context.Context, q backend.ListQuery) (*backend.RowPage, error) {
	q, offset, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var rows []backend.SessionRow
	err = s.view(func(txn *badger.Txn) error {
		return scanIndex(txn, indexPrefix(prefixUserIndex, q.UserID), func(id []byte) error {
			var row backend.SessionRow
			found, err := getJSON(txn, rowKey(prefixSession, string(id)), &row)
			if err != nil {
				return err
			}
			if found {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return backend.PageOf(rows, q, offset), nil
}

// PutFile implements backend.Backend.
func (s *Store) PutFile(_ context.Context, row backend.FileRow) error {
	err := s.update(func(txn *badger.Txn) error {
		var prev backend.FileRow
		found, err := getJSON(txn, rowKey(prefixFile, row.ID), &prev)
		if err != nil {
			return err
		}
		if found && prev.SessionID != row.SessionID {
			if err := txn.Delete(indexKey(prefixFileIndex, prev.SessionID, row.ID)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, rowKey(prefixFile, row.ID), row); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixFileIndex, row.SessionID, row.ID), nil)
	})
	if err != nil {
		return storageErr("put file", err)
	}
	return nil
}

// GetFile implements backend.Backend.
func (s *Store) GetFile(_ context.Context, id string) (*backend.FileRow, error) {
	var (
		row   backend.FileRow
		found bool
	)
	err := s.view(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, rowKey(prefixFile, id), &row)
		return err
	})
	if err != nil {
		return nil, storageErr("get file", err)
	}
	if !found {
		return nil, nil
	}
	return &row, nil
}

// ListFilesBySession implements backend.Backend.
func (s *Store) ListFilesBySession(_ context.Context, sessionID string) ([]backend.FileRow, error) {
	rows := []backend.FileRow{}
	err := s.view(func(txn *badger.Txn) error {
		return scanIndex(txn, indexPrefix(prefixFileIndex, sessionID), func(id []byte) error {
			var row backend.FileRow
			found, err := getJSON(txn, rowKey(prefixFile, string(id)), &row)
			if err != nil {
				return err
			}
			if found {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("list files", err)
	}
	backend.SortFiles(rows)
	return rows, nil
}

// DeleteFile implements backend.Backend.
func (s *Store) DeleteFile(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := s.update(func(txn *badger.Txn) error {
		var prev backend.FileRow
		found, err := getJSON(txn, rowKey(prefixFile, id), &prev)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(rowKey(prefixFile, id)); err != nil {
			return err
		}
		deleted = true
		return txn.Delete(indexKey(prefixFileIndex, prev.SessionID, id))
	})
	if err != nil {
		return false, storageErr("delete file", err)
	}
	return deleted, nil
}

// PutRecord implements backend.Backend.
func (s *Store) PutRecord(_ context.Context, row backend.RecordRow) error {
	err := s.update(func(txn *badger.Txn) error {
		var prev backend.RecordRow
		found, err := getJSON(txn, rowKey(prefixRecord, row.ID), &prev)
		if err != nil {
			return err
		}
		if found && prev.PatientID != row.PatientID {
			if err := txn.Delete(indexKey(prefixPatientIndex, prev.PatientID, row.ID)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, rowKey(prefixRecord, row.ID), row); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixPatientIndex, row.PatientID, row.ID), nil)
	})
	if err != nil {
		return storageErr("put record", err)
	}
	return nil
}

// GetRecord implements backend.Backend.
func (s *Store) GetRecord(_ context.Context, id string) (*backend.RecordRow, error) {
	var (
		row   backend.RecordRow
		found bool
	)
	err := s.view(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, rowKey(prefixRecord, id), &row)
		return err
	})
	if err != nil {
		return nil, storageErr("get record", err)
	}
	if !found {
		return nil, nil
	}
	return &row, nil
}

// ListRecordsByPatient implements backend.Backend.
func (s *Store) ListRecordsByPatient(_ context.Context, patientID string) ([]backend.RecordRow, error) {
	rows := []backend.RecordRow{}
	err := s.view(func(txn *badger.Txn) error {
		return scanIndex(txn, indexPrefix(prefixPatientIndex, patientID), func(id []byte) error {
			var row backend.RecordRow
			found, err := getJSON(txn, rowKey(prefixRecord, string(id)), &row)
			if err != nil {
				return err
			}
			if found {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("list records", err)
	}
	backend.SortRecords(rows)
	return rows, nil
}

// AppendAudit implements backend.Backend.
func (s *Store) AppendAudit(_ context.Context, entry *domain.AuditEntry) (int64, error) {
	if s.closed.Load() {
		return 0, domain.ErrClosed
	}
	n, err := s.auditSeq.Next()
	if err != nil {
		return 0, storageErr("append audit", err)
	}
	id := n + 1

	stored := entry.Clone()
	stored.ID = int64(id)
	err = s.update(func(txn *badger.Txn) error {
		if err := setJSON(txn, auditKey(id), stored); err != nil {
			return err
		}
		if err := txn.Set(auditIndexKey(prefixAuditSession, stored.SessionID, id), nil); err != nil {
			return err
		}
		if stored.ActorID == "" {
			return nil
		}
		return txn.Set(auditIndexKey(prefixAuditActor, stored.ActorID, id), nil)
	})
	if err != nil {
		return 0, storageErr("append audit", err)
	}
	return stored.ID, nil
}

// ListAuditBySession implements backend.Backend.
func (s *Store) ListAuditBySession(_ context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error) {
	return s.listAudit(indexPrefix(prefixAuditSession, sessionID), limit)
}

// ListAuditByActor implements backend.Backend.
func (s *Store) ListAuditByActor(_ context.Context, actorID string, limit int) ([]*domain.AuditEntry, error) {
	return s.listAudit(indexPrefix(prefixAuditActor, actorID), limit)
}

func (s *Store) listAudit(p []byte, limit int) ([]*domain.AuditEntry, error) {
	entries := []*domain.AuditEntry{}
	err := s.view(func(txn *badger.Txn) error {
		return scanIndex(txn, p, func(suffix []byte) error {
			if len(suffix) != 8 {
				return nil
			}
			key := append(append([]byte{}, prefixAudit...), suffix...)
			var e domain.AuditEntry
			found, err := getJSON(txn, key, &e)
			if err != nil {
				return err
			}
			if found {
				entries = append(entries, &e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("list audit", err)
	}
	return backend.SortAudit(entries, limit), nil
}
