package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yndnr/clinvault/internal/storage/backend"
)

const recordColumns = `id, patient_id, payload, version, created_at, updated_at`

func scanRecord(sc rowScanner) (*backend.RecordRow, error) {
	var r backend.RecordRow
	if err := sc.Scan(&r.ID, &r.PatientID, &r.Payload, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutRecord implements backend.Backend.
func (s *Store) PutRecord(ctx context.Context, row backend.RecordRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO records (`+recordColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    patient_id = excluded.patient_id,
    payload = excluded.payload,
    version = excluded.version,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`,
		row.ID, row.PatientID, row.Payload, row.Version, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return storageErr("put record", err)
	}
	return nil
}

// GetRecord implements backend.Backend.
func (s *Store) GetRecord(ctx context.Context, id string) (*backend.RecordRow, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	return r, nil
}

// ListRecordsByPatient implements backend.Backend.
func (s *Store) ListRecordsByPatient(ctx context.Context, patientID string) ([]backend.RecordRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE patient_id = ? ORDER BY updated_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	defer rows.Close()

	out := []backend.RecordRow{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan record", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list records", err)
	}
	return out, nil
}
