package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/backend/backendtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "clinvault.db"), discardLogger())
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return openTestStore(t)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", discardLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpen_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(context.Background(), filepath.Join(blocker, "data", "clinvault.db"), discardLogger())
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clinvault.db")

	s, err := Open(ctx, path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, backend.KindSQLite, s.Kind())
	assert.True(t, s.Durable())
	assert.Equal(t, path, s.Path())

	_, err = s.PutSession(ctx, backend.SessionRow{ID: "s1", UserID: "u1", Payload: []byte{1, 2, 3}, CreatedAt: 1, UpdatedAt: 1})
	require.NoError(t, err)
	_, err = s.AppendAudit(ctx, &domain.AuditEntry{SessionID: "s1", Action: domain.AuditCreate, ActorID: "u1", Timestamp: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening re-runs migrations, which must be a no-op.
	s, err = Open(ctx, path, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)

	id, err := s.AppendAudit(ctx, &domain.AuditEntry{SessionID: "s1", Action: domain.AuditRead, ActorID: "u1", Timestamp: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id, "audit ids continue after reopen")
}

func TestStore_WALMode(t *testing.T) {
	s := openTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestStore_AuditMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.AppendAudit(ctx, &domain.AuditEntry{
		SessionID: "s1",
		Action:    domain.AuditUpdate,
		ActorID:   "doc-1",
		Timestamp: 5,
		Metadata:  map[string]string{"ip": "10.0.0.1"},
	})
	require.NoError(t, err)

	entries, err := s.ListAuditBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]string{"ip": "10.0.0.1"}, entries[0].Metadata)
}

func TestStore_ClosedReturnsStorageError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetSession(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, discardLogger()), mock
}

func TestPutSession_ExecErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM sessions WHERE id = ?`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`INSERT INTO sessions .* ON CONFLICT \(id\) DO UPDATE SET`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := s.PutSession(context.Background(), backend.SessionRow{ID: "s1", UserID: "u1", Payload: []byte("x")})
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "put session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutSession_ReportsUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM sessions`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := s.PutSession(context.Background(), backend.SessionRow{ID: "s1", UserID: "u1", Payload: []byte("x")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutSession_CommitError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM sessions`).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`INSERT INTO sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := s.PutSession(context.Background(), backend.SessionRow{ID: "s1", UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions_CountError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE user_id = \?`).
		WithArgs("u1").
		WillReturnError(errors.New("no such table: sessions"))

	_, err := s.ListSessionsByUser(context.Background(), backend.ListQuery{UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions_OrderClause(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY created_at ASC, id ASC LIMIT \? OFFSET \?`).
		WithArgs("u1", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "patient_id", "payload", "message_count", "token_count", "created_at", "updated_at"}).
			AddRow("a", "u1", "", []byte("p"), 1, 10, 1, 1).
			AddRow("b", "u1", "", []byte("p"), 1, 10, 2, 2))

	page, err := s.ListSessionsByUser(context.Background(), backend.ListQuery{
		UserID:    "u1",
		PageSize:  2,
		SortBy:    backend.SortByCreatedAt,
		SortOrder: backend.SortAsc,
	})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, 3, page.Total)
	assert.NotEmpty(t, page.NextPageToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions_InvalidQueryHitsNoSQL(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.ListSessionsByUser(context.Background(), backend.ListQuery{UserID: "u1", SortBy: "name; DROP TABLE sessions"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAudit_ExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("s1", "read", "doc-1", int64(7), nil).
		WillReturnError(errors.New("disk full"))

	_, err := s.AppendAudit(context.Background(), &domain.AuditEntry{SessionID: "s1", Action: domain.AuditRead, ActorID: "doc-1", Timestamp: 7})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
