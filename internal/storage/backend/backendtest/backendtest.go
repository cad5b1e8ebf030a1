// Package backendtest is a conformance suite for backend.Backend
// implementations.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
)

// Factory opens a fresh, empty backend for one subtest. The suite closes it.
type Factory func(t *testing.T) backend.Backend

// Run executes the suite against backends produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b backend.Backend)
	}{
		{"SessionUpsert", testSessionUpsert},
		{"SessionOwnerChange", testSessionOwnerChange},
		{"SessionDelete", testSessionDelete},
		{"SessionConcurrentSameID", testSessionConcurrentSameID},
		{"PaginationCompleteness", testPaginationCompleteness},
		{"PaginationOrder", testPaginationOrder},
		{"PaginationInvalidToken", testPaginationInvalidToken},
		{"Files", testFiles},
		{"Records", testRecords},
		{"AuditOrder", testAuditOrder},
		{"AuditByActor", testAuditByActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

func sessionRow(id, user string, created, updated int64) backend.SessionRow {
	return backend.SessionRow{
		ID:           id,
		UserID:       user,
		Payload:      []byte("sealed:" + id),
		MessageCount: 3,
		TokenCount:   42,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}
}

func testSessionUpsert(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	got, err := b.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	row := sessionRow("s1", "u1", 100, 100)
	row.PatientID = "p1"
	created, err := b.PutSession(ctx, row)
	require.NoError(t, err)
	assert.True(t, created, "first write creates")

	row.Payload = []byte("sealed:s1:v2")
	row.MessageCount = 4
	row.UpdatedAt = 200
	created, err = b.PutSession(ctx, row)
	require.NoError(t, err)
	assert.False(t, created, "second write updates")

	got, err = b.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, row, *got)
}

func testSessionOwnerChange(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.PutSession(ctx, sessionRow("s1", "u1", 1, 1))
	require.NoError(t, err)
	_, err = b.PutSession(ctx, sessionRow("s1", "u2", 1, 2))
	require.NoError(t, err)

	page, err := b.ListSessionsByUser(ctx, backend.ListQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Zero(t, page.Total)

	page, err = b.ListSessionsByUser(ctx, backend.ListQuery{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "s1", page.Rows[0].ID)
}

func testSessionDelete(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.PutSession(ctx, sessionRow("s1", "u1", 1, 1))
	require.NoError(t, err)

	deleted, err := b.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = b.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a missing session is not an error")

	got, err := b.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	page, err := b.ListSessionsByUser(ctx, backend.ListQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func testSessionConcurrentSameID(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	const (
		writers = 50
		owners  = 5
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		creates int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row := sessionRow("s1", fmt.Sprintf("u%d", i%owners), 1, int64(i+1))
			created, err := b.PutSession(ctx, row)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if created {
				creates++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs, "concurrent writes to one id must all succeed")
	assert.Equal(t, 1, creates, "exactly one write creates the row")

	got, err := b.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)

	// The surviving row is one complete write and is indexed under its owner only.
	var listed int
	for i := 0; i < owners; i++ {
		user := fmt.Sprintf("u%d", i)
		page, err := b.ListSessionsByUser(ctx, backend.ListQuery{UserID: user})
		require.NoError(t, err)
		listed += page.Total
		if user == got.UserID {
			require.Len(t, page.Rows, 1)
			assert.Equal(t, got.UpdatedAt, page.Rows[0].UpdatedAt)
		} else {
			assert.Zero(t, page.Total, "stale index entry for %s", user)
		}
	}
	assert.Equal(t, 1, listed)
	assert.Equal(t, fmt.Sprintf("u%d", (got.UpdatedAt-1)%owners), got.UserID)
}

func testPaginationCompleteness(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	const n = 23

	for i := 0; i < n; i++ {
		// Pairs of equal updated_at values exercise the tie-break.
		_, err := b.PutSession(ctx, sessionRow(fmt.Sprintf("s%02d", i), "u1", int64(i), int64(i/2)))
		require.NoError(t, err)
	}
	_, err := b.PutSession(ctx, sessionRow("other", "u2", 1, 1))
	require.NoError(t, err)

	for _, size := range []int{1, 2, 5, 22, 23, 50} {
		for _, order := range []backend.SortOrder{backend.SortDesc, backend.SortAsc} {
			t.Run(fmt.Sprintf("size=%d/%s", size, order), func(t *testing.T) {
				seen := make(map[string]bool)
				token := ""
				for pages := 0; ; pages++ {
					require.Less(t, pages, n+1, "pagination does not terminate")

					page, err := b.ListSessionsByUser(ctx, backend.ListQuery{
						UserID:    "u1",
						PageSize:  size,
						PageToken: token,
						SortOrder: order,
					})
					require.NoError(t, err)
					assert.Equal(t, n, page.Total)
					assert.LessOrEqual(t, len(page.Rows), size)

					for _, r := range page.Rows {
						assert.Equal(t, "u1", r.UserID)
						assert.False(t, seen[r.ID], "duplicate %s", r.ID)
						seen[r.ID] = true
					}
					if page.NextPageToken == "" {
						break
					}
					token = page.NextPageToken
				}
				assert.Len(t, seen, n)
			})
		}
	}
}

func testPaginationOrder(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.PutSession(ctx, sessionRow("a", "u1", 3, 10))
	require.NoError(t, err)
	_, err = b.PutSession(ctx, sessionRow("b", "u1", 1, 30))
	require.NoError(t, err)
	_, err = b.PutSession(ctx, sessionRow("c", "u1", 2, 20))
	require.NoError(t, err)

	tests := []struct {
		by    backend.SortField
		order backend.SortOrder
		want  []string
	}{
		{backend.SortByUpdatedAt, backend.SortDesc, []string{"b", "c", "a"}},
		{backend.SortByUpdatedAt, backend.SortAsc, []string{"a", "c", "b"}},
		{backend.SortByCreatedAt, backend.SortDesc, []string{"a", "c", "b"}},
		{backend.SortByCreatedAt, backend.SortAsc, []string{"b", "c", "a"}},
	}
	for _, tt := range tests {
		page, err := b.ListSessionsByUser(ctx, backend.ListQuery{UserID: "u1", SortBy: tt.by, SortOrder: tt.order})
		require.NoError(t, err)
		got := make([]string, len(page.Rows))
		for i, r := range page.Rows {
			got[i] = r.ID
		}
		assert.Equal(t, tt.want, got, "%s %s", tt.by, tt.order)
	}
}

func testPaginationInvalidToken(t *testing.T, b backend.Backend) {
	_, err := b.ListSessionsByUser(context.Background(), backend.ListQuery{UserID: "u1", PageToken: "garbage!"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func testFiles(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	for i, id := range []string{"f2", "f1", "f3"} {
		sid := "s1"
		if id == "f3" {
			sid = "s2"
		}
		require.NoError(t, b.PutFile(ctx, backend.FileRow{
			ID:        id,
			SessionID: sid,
			Payload:   []byte("sealed:" + id),
			Size:      int64(100 * (i + 1)),
			MediaType: "application/pdf",
			CreatedAt: int64(10 - i),
		}))
	}
	require.NoError(t, b.PutFile(ctx, backend.FileRow{ID: "orphan", Payload: []byte("x"), CreatedAt: 1}))

	got, err := b.GetFile(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(200), got.Size)
	assert.Equal(t, []byte("sealed:f1"), got.Payload)

	orphan, err := b.GetFile(ctx, "orphan")
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Empty(t, orphan.SessionID)

	files, err := b.ListFilesBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "f1", files[0].ID, "oldest first")

	deleted, err := b.DeleteFile(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = b.DeleteFile(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, deleted)

	missing, err := b.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	files, err = b.ListFilesBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func testRecords(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	rows := []backend.RecordRow{
		{ID: "r1", PatientID: "p1", Version: 1, Payload: []byte("v1"), CreatedAt: 1, UpdatedAt: 1},
		{ID: "r2", PatientID: "p1", Version: 2, Payload: []byte("v2"), CreatedAt: 2, UpdatedAt: 5},
		{ID: "r3", PatientID: "p1", Version: 3, Payload: []byte("v3"), CreatedAt: 3, UpdatedAt: 3},
		{ID: "r4", PatientID: "p2", Version: 1, Payload: []byte("x"), CreatedAt: 4, UpdatedAt: 4},
	}
	for _, r := range rows {
		require.NoError(t, b.PutRecord(ctx, r))
	}

	list, err := b.ListRecordsByPatient(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"r2", "r3", "r1"}, []string{list[0].ID, list[1].ID, list[2].ID})

	updated := rows[0]
	updated.UpdatedAt = 9
	updated.Payload = []byte("v1b")
	require.NoError(t, b.PutRecord(ctx, updated))

	got, err := b.GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, updated, *got)

	list, err = b.ListRecordsByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "r1", list[0].ID, "upsert moves the record to the front")

	none, err := b.GetRecord(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testAuditOrder(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	actions := []domain.AuditAction{domain.AuditCreate, domain.AuditRead, domain.AuditUpdate, domain.AuditDelete}
	var lastID int64
	for i, a := range actions {
		id, err := b.AppendAudit(ctx, &domain.AuditEntry{
			SessionID: "s1",
			Action:    a,
			ActorID:   "doc-1",
			Timestamp: 1000 + int64(i/2), // equal timestamps fall back to ID order
			Metadata:  map[string]string{"seq": fmt.Sprint(i)},
		})
		require.NoError(t, err)
		assert.Greater(t, id, lastID, "ids increase")
		lastID = id
	}
	_, err := b.AppendAudit(ctx, &domain.AuditEntry{SessionID: "s2", Action: domain.AuditRead, ActorID: "doc-1", Timestamp: 999})
	require.NoError(t, err)

	entries, err := b.ListAuditBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, domain.AuditDelete, entries[0].Action)
	assert.Equal(t, domain.AuditUpdate, entries[1].Action)
	assert.Equal(t, domain.AuditRead, entries[2].Action)
	assert.Equal(t, domain.AuditCreate, entries[3].Action)
	assert.Equal(t, "3", entries[0].Metadata["seq"])

	limited, err := b.ListAuditBySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, domain.AuditDelete, limited[0].Action)

	none, err := b.ListAuditBySession(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAuditByActor(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	for i, actor := range []string{"doc-1", "doc-2", "doc-1"} {
		_, err := b.AppendAudit(ctx, &domain.AuditEntry{
			SessionID: fmt.Sprintf("s%d", i),
			Action:    domain.AuditRead,
			ActorID:   actor,
			Timestamp: int64(100 + i),
		})
		require.NoError(t, err)
	}

	entries, err := b.ListAuditByActor(ctx, "doc-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s2", entries[0].SessionID)
	assert.Equal(t, "s0", entries[1].SessionID)
}
