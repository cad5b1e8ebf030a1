package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/pagetoken"
)

const sessionColumns = `id, user_id, patient_id, payload, message_count, token_count, created_at, updated_at`

const upsertSessionSQL = `INSERT INTO sessions (` + sessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    user_id = excluded.user_id,
    patient_id = excluded.patient_id,
    payload = excluded.payload,
    message_count = excluded.message_count,
    token_count = excluded.token_count,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(sc rowScanner) (*backend.SessionRow, error) {
	var r backend.SessionRow
	if err := sc.Scan(&r.ID, &r.UserID, &r.PatientID, &r.Payload, &r.MessageCount, &r.TokenCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutSession implements backend.Backend.
func (s *Store) PutSession(ctx context.Context, row backend.SessionRow) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, row.ID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return err
		}

		_, err = tx.ExecContext(ctx, upsertSessionSQL,
			row.ID, row.UserID, row.PatientID, row.Payload,
			row.MessageCount, row.TokenCount, row.CreatedAt, row.UpdatedAt)
		return err
	})
	if err != nil {
		return false, storageErr("put session", err)
	}
	return created, nil
}

// GetSession implements backend.Backend.
func (s *Store) GetSession(ctx context.Context, id string) (*backend.SessionRow, error) {
	r, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}
	return r, nil
}

// DeleteSession implements backend.Backend.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete session", err)
	}
	return n > 0, nil
}

// ListSessionsByUser implements backend.Backend.
func (s *Store) ListSessionsByUser(ctx context.Context, q backend.ListQuery) (*backend.RowPage, error) {
	q, offset, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, q.UserID).Scan(&total); err != nil {
		return nil, storageErr("count sessions", err)
	}

	// Column and direction come from the normalized whitelist.
	dir := "DESC"
	if q.SortOrder == backend.SortAsc {
		dir = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE user_id = ? ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		sessionColumns, string(q.SortBy), dir, dir)

	rows, err := s.db.QueryContext(ctx, query, q.UserID, q.PageSize, offset)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	page := &backend.RowPage{Total: total}
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, storageErr("scan session", err)
		}
		page.Rows = append(page.Rows, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sessions", err)
	}

	page.NextPageToken = pagetoken.Next(offset, len(page.Rows), total)
	return page, nil
}
