package domain

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxUserIDLength    = 128
	MaxPatientIDLength = 128
	MaxRoleLength      = 32
	MaxAgentLength     = 64
	MaxExtraKeyLength  = 64
	MaxExtraValueLen   = 1024 // 1KB per value
	MaxExtraTotalSize  = 8192 // 8KB total

	// SessionIDPrefix is the prefix for generated session IDs.
	SessionIDPrefix = "sess-"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Agent     string `json:"agent,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// SessionMetadata carries bookkeeping about a session.
type SessionMetadata struct {
	// CreatedAt is stamped by the storage engine on first save (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is stamped by the storage engine on every save (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at"`

	// TokenCount is the running model token usage of the conversation.
	TokenCount int64 `json:"token_count"`

	// Extra holds free-form caller metadata.
	Extra map[string]string `json:"extra,omitempty"`
}

// Session is a conversational session owned by exactly one user.
//
// A save always replaces the whole session; there are no partial updates.
type Session struct {
	// ID is the unique identifier for the session.
	// Generated IDs have the form sess-{ulid_lowercase}, but any
	// non-empty caller-chosen ID is accepted.
	ID string `json:"id"`

	// UserID identifies the user who owns this session.
	UserID string `json:"user_id"`

	// PatientID optionally links the session to a clinical context.
	PatientID string `json:"patient_id,omitempty"`

	// Messages is the ordered message history.
	Messages []Message `json:"messages"`

	Metadata SessionMetadata `json:"metadata"`
}

// NewSession creates a new Session with a generated ID.
func NewSession(userID string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	return &Session{
		ID:       id,
		UserID:   userID,
		Messages: []Message{},
		Metadata: SessionMetadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}, nil
}

// GenerateSessionID generates a new session ID.
func GenerateSessionID() (string, error) {
	return generateID(SessionIDPrefix)
}

func generateID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInvalidArgument.WithDetails("id generation failed").WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// AppendMessage appends a message stamped with the current time.
func (s *Session) AppendMessage(role, content, agent string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Agent:     agent,
		Timestamp: time.Now().UnixMilli(),
	})
}

// MessageCount returns the number of messages in the history.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Validate validates the session fields against constraints.
// Returns ErrValidation with the joined violations.
func (s *Session) Validate() error {
	var violations []string

	if s.ID == "" {
		violations = append(violations, "id is required")
	}
	if s.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if len(s.UserID) > MaxUserIDLength {
		violations = append(violations, "user_id exceeds 128 characters")
	}
	if len(s.PatientID) > MaxPatientIDLength {
		violations = append(violations, "patient_id exceeds 128 characters")
	}
	if s.Metadata.TokenCount < 0 {
		violations = append(violations, "token_count must not be negative")
	}

	for i, m := range s.Messages {
		if m.Role == "" || len(m.Role) > MaxRoleLength {
			violations = append(violations, "message role is missing or too long at index "+strconv.Itoa(i))
		}
		if len(m.Agent) > MaxAgentLength {
			violations = append(violations, "message agent exceeds 64 characters at index "+strconv.Itoa(i))
		}
	}

	if err := validateExtra(s.Metadata.Extra); err != "" {
		violations = append(violations, err)
	}

	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// validateExtra checks free-form metadata limits and returns a violation or "".
func validateExtra(m map[string]string) string {
	var total int
	for k, v := range m {
		if len(k) > MaxExtraKeyLength {
			return "metadata key exceeds 64 characters"
		}
		if len(v) > MaxExtraValueLen {
			return "metadata value exceeds 1KB"
		}
		total += len(k) + len(v)
	}
	if total > MaxExtraTotalSize {
		return "metadata total size exceeds 8KB"
	}
	return ""
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Messages != nil {
		clone.Messages = make([]Message, len(s.Messages))
		copy(clone.Messages, s.Messages)
	}
	clone.Metadata.Extra = cloneStringMap(s.Metadata.Extra)
	return &clone
}

// CreatedAtTime returns Metadata.CreatedAt as time.Time.
func (s *Session) CreatedAtTime() time.Time {
	return time.UnixMilli(s.Metadata.CreatedAt)
}

// UpdatedAtTime returns Metadata.UpdatedAt as time.Time.
func (s *Session) UpdatedAtTime() time.Time {
	return time.UnixMilli(s.Metadata.UpdatedAt)
}

// IsValidSessionID reports whether id has the generated session ID format.
func IsValidSessionID(id string) bool {
	return hasULIDSuffix(strings.ToLower(id), SessionIDPrefix)
}

func hasULIDSuffix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	if len(id) != len(prefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(prefix):]))
	return err == nil
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
