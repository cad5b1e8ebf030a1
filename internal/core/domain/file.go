package domain

import (
	"strings"
	"time"
)

const (
	// FileIDPrefix is the prefix for generated clinical file IDs.
	FileIDPrefix = "file-"

	MaxFileNameLength  = 255
	MaxMediaTypeLength = 127
)

// ClinicalFile is the metadata of an uploaded clinical document.
// Files are created on upload and deleted explicitly; they are never mutated.
type ClinicalFile struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`

	// ContentRef locates the binary content outside the store
	// (object key, path or transcription handle).
	ContentRef string `json:"content_ref"`

	CreatedAt int64             `json:"created_at"` // Unix milliseconds
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewClinicalFile creates a ClinicalFile with a generated ID.
func NewClinicalFile(sessionID, name, mediaType string, size int64) (*ClinicalFile, error) {
	id, err := generateID(FileIDPrefix)
	if err != nil {
		return nil, err
	}
	return &ClinicalFile{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		MediaType: mediaType,
		Size:      size,
		CreatedAt: time.Now().UnixMilli(),
	}, nil
}

// Validate validates the file fields against constraints.
func (f *ClinicalFile) Validate() error {
	var violations []string

	if f.ID == "" {
		violations = append(violations, "id is required")
	}
	if f.Name == "" {
		violations = append(violations, "name is required")
	}
	if len(f.Name) > MaxFileNameLength {
		violations = append(violations, "name exceeds 255 characters")
	}
	if len(f.MediaType) > MaxMediaTypeLength {
		violations = append(violations, "media_type exceeds 127 characters")
	}
	if f.Size < 0 {
		violations = append(violations, "size must not be negative")
	}
	if err := validateExtra(f.Metadata); err != "" {
		violations = append(violations, err)
	}

	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the file.
func (f *ClinicalFile) Clone() *ClinicalFile {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Metadata = cloneStringMap(f.Metadata)
	return &clone
}
