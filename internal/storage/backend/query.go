package backend

import (
	"cmp"
	"slices"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/pagetoken"
)

// SortField selects the listing order column.
type SortField string

const (
	SortByUpdatedAt SortField = "updated_at"
	SortByCreatedAt SortField = "created_at"
)

// SortOrder selects the listing direction.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// Page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// ListQuery selects one page of a user's sessions.
type ListQuery struct {
	UserID    string
	PageSize  int
	PageToken string
	SortBy    SortField
	SortOrder SortOrder
}

// RowPage is one page of a listing.
type RowPage struct {
	Rows []SessionRow
	// NextPageToken is empty when no rows remain.
	NextPageToken string
	// Total counts every row matching the query, across all pages.
	Total int
}

// Normalize fills defaults, validates the query and returns the decoded
// offset.
func (q ListQuery) Normalize() (ListQuery, int, error) {
	if q.UserID == "" {
		return q, 0, domain.ErrInvalidArgument.WithDetails("user_id is required")
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	switch q.SortBy {
	case "":
		q.SortBy = SortByUpdatedAt
	case SortByUpdatedAt, SortByCreatedAt:
	default:
		return q, 0, domain.ErrInvalidArgument.WithDetails("unknown sort field " + string(q.SortBy))
	}
	switch q.SortOrder {
	case "":
		q.SortOrder = SortDesc
	case SortDesc, SortAsc:
	default:
		return q, 0, domain.ErrInvalidArgument.WithDetails("unknown sort order " + string(q.SortOrder))
	}

	tok, err := pagetoken.Decode(q.PageToken)
	if err != nil {
		return q, 0, err
	}
	return q, tok.Offset, nil
}

// SortSessions orders rows by the query's field and direction, breaking
// ties by ID in the same direction so pages are stable.
func SortSessions(rows []SessionRow, by SortField, order SortOrder) {
	key := func(r SessionRow) int64 { return r.UpdatedAt }
	if by == SortByCreatedAt {
		key = func(r SessionRow) int64 { return r.CreatedAt }
	}
	slices.SortFunc(rows, func(a, b SessionRow) int {
		c := cmp.Or(cmp.Compare(key(a), key(b)), cmp.Compare(a.ID, b.ID))
		if order == SortDesc {
			return -c
		}
		return c
	})
}

// PageOf sorts all matching rows and cuts the page selected by q, which
// must already be normalized, starting at offset.
func PageOf(rows []SessionRow, q ListQuery, offset int) *RowPage {
	SortSessions(rows, q.SortBy, q.SortOrder)

	total := len(rows)
	if offset > total {
		offset = total
	}
	end := min(offset+q.PageSize, total)
	page := slices.Clone(rows[offset:end])

	return &RowPage{
		Rows:          page,
		NextPageToken: pagetoken.Next(offset, len(page), total),
		Total:         total,
	}
}

// SortRecords orders records newest UpdatedAt first, then by ID descending.
func SortRecords(rows []RecordRow) {
	slices.SortFunc(rows, func(a, b RecordRow) int {
		return -cmp.Or(cmp.Compare(a.UpdatedAt, b.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
}

// SortFiles orders files oldest CreatedAt first, then by ID.
func SortFiles(rows []FileRow) {
	slices.SortFunc(rows, func(a, b FileRow) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

// SortAudit orders entries newest first, then by descending ID, and
// truncates to limit when limit > 0.
func SortAudit(entries []*domain.AuditEntry, limit int) []*domain.AuditEntry {
	slices.SortFunc(entries, func(a, b *domain.AuditEntry) int {
		return -cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Clone returns a deep copy of r.
func (r SessionRow) Clone() SessionRow {
	r.Payload = slices.Clone(r.Payload)
	return r
}

// Clone returns a deep copy of r.
func (r FileRow) Clone() FileRow {
	r.Payload = slices.Clone(r.Payload)
	return r
}

// Clone returns a deep copy of r.
func (r RecordRow) Clone() RecordRow {
	r.Payload = slices.Clone(r.Payload)
	return r
}
