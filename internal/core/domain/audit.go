package domain

import "time"

// AuditAction is the kind of access an audit entry records.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditRead   AuditAction = "read"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditRead, AuditUpdate, AuditDelete:
		return true
	}
	return false
}

// AuditEntry is an immutable record of one session access.
type AuditEntry struct {
	// ID is assigned by the backend on append and increases monotonically.
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	Action    AuditAction       `json:"action"`
	ActorID   string            `json:"actor_id"`
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewAuditEntry builds an entry stamped with the current time.
func NewAuditEntry(sessionID string, action AuditAction, actorID string) *AuditEntry {
	return &AuditEntry{
		SessionID: sessionID,
		Action:    action,
		ActorID:   actorID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate checks the entry before it is appended.
func (e *AuditEntry) Validate() error {
	switch {
	case e.SessionID == "":
		return ErrValidation.WithDetails("audit session_id is required")
	case !e.Action.Valid():
		return ErrValidation.WithDetails("unknown audit action " + string(e.Action))
	}
	return nil
}

// Clone creates a deep copy of the entry.
func (e *AuditEntry) Clone() *AuditEntry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Metadata = cloneStringMap(e.Metadata)
	return &clone
}

// Time returns Timestamp as time.Time.
func (e *AuditEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
