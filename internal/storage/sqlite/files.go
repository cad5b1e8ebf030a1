package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yndnr/clinvault/internal/storage/backend"
)

const fileColumns = `id, session_id, payload, size, media_type, created_at`

func scanFile(sc rowScanner) (*backend.FileRow, error) {
	var (
		r         backend.FileRow
		sessionID sql.NullString
	)
	if err := sc.Scan(&r.ID, &sessionID, &r.Payload, &r.Size, &r.MediaType, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.SessionID = sessionID.String
	return &r, nil
}

// PutFile implements backend.Backend.
func (s *Store) PutFile(ctx context.Context, row backend.FileRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO files (`+fileColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    session_id = excluded.session_id,
    payload = excluded.payload,
    size = excluded.size,
    media_type = excluded.media_type,
    created_at = excluded.created_at`,
		row.ID, nullString(row.SessionID), row.Payload, row.Size, row.MediaType, row.CreatedAt)
	if err != nil {
		return storageErr("put file", err)
	}
	return nil
}

// GetFile implements backend.Backend.
func (s *Store) GetFile(ctx context.Context, id string) (*backend.FileRow, error) {
	r, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get file", err)
	}
	return r, nil
}

// ListFilesBySession implements backend.Backend.
func (s *Store) ListFilesBySession(ctx context.Context, sessionID string) ([]backend.FileRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, storageErr("list files", err)
	}
	defer rows.Close()

	out := []backend.FileRow{}
	for rows.Next() {
		r, err := scanFile(rows)
		if err != nil {
			return nil, storageErr("scan file", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list files", err)
	}
	return out, nil
}

// DeleteFile implements backend.Backend.
func (s *Store) DeleteFile(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete file", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete file", err)
	}
	return n > 0, nil
}
