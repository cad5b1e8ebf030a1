package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/yndnr/clinvault/internal/core/domain"
)

// AppendAudit implements backend.Backend.
func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) (int64, error) {
	var meta sql.NullString
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return 0, domain.ErrValidation.WithDetails("audit metadata").WithCause(err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (session_id, action, actor_id, timestamp, metadata) VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, string(entry.Action), entry.ActorID, entry.Timestamp, meta)
	if err != nil {
		return 0, storageErr("append audit", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append audit", err)
	}
	return id, nil
}

// ListAuditBySession implements backend.Backend.
func (s *Store) ListAuditBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error) {
	return s.listAudit(ctx, `session_id = ?`, sessionID, limit)
}

// ListAuditByActor implements backend.Backend.
func (s *Store) ListAuditByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error) {
	return s.listAudit(ctx, `actor_id = ?`, actorID, limit)
}

func (s *Store) listAudit(ctx context.Context, where, arg string, limit int) ([]*domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, action, actor_id, timestamp, metadata FROM audit_log
WHERE `+where+` ORDER BY timestamp DESC, id DESC LIMIT ?`, arg, sqliteLimit(limit))
	if err != nil {
		return nil, storageErr("list audit", err)
	}
	defer rows.Close()

	out := []*domain.AuditEntry{}
	for rows.Next() {
		var (
			e      domain.AuditEntry
			action string
			meta   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &action, &e.ActorID, &e.Timestamp, &meta); err != nil {
			return nil, storageErr("scan audit", err)
		}
		e.Action = domain.AuditAction(action)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, storageErr("decode audit metadata", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list audit", err)
	}
	return out, nil
}
