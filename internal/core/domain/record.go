package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// RecordIDPrefix is the prefix for generated clinical record IDs.
	RecordIDPrefix = "rec-"
)

// ClinicalRecord is a structured, versioned clinical document (a "ficha")
// owned by one patient. A patient may have many records; they are listed
// newest UpdatedAt first.
type ClinicalRecord struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	Version   int    `json:"version"`

	// Content is the free-form structured document. It must be a JSON object.
	Content json.RawMessage `json:"content"`

	CreatedAt int64 `json:"created_at"` // Unix milliseconds
	UpdatedAt int64 `json:"updated_at"` // Unix milliseconds
}

// NewClinicalRecord creates version 1 of a record for patientID.
func NewClinicalRecord(patientID string, content map[string]any) (*ClinicalRecord, error) {
	id, err := generateID(RecordIDPrefix)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, ErrValidation.WithDetails("content is not serializable").WithCause(err)
	}
	now := time.Now().UnixMilli()
	return &ClinicalRecord{
		ID:        id,
		PatientID: patientID,
		Version:   1,
		Content:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Fields decodes Content into a map.
func (r *ClinicalRecord) Fields() (map[string]any, error) {
	out := make(map[string]any)
	if len(r.Content) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Content, &out); err != nil {
		return nil, ErrValidation.WithDetails("content is not a JSON object").WithCause(err)
	}
	return out, nil
}

// Validate validates the record fields against constraints.
func (r *ClinicalRecord) Validate() error {
	var violations []string

	if r.ID == "" {
		violations = append(violations, "id is required")
	}
	if r.PatientID == "" {
		violations = append(violations, "patient_id is required")
	}
	if len(r.PatientID) > MaxPatientIDLength {
		violations = append(violations, "patient_id exceeds 128 characters")
	}
	if r.Version < 1 {
		violations = append(violations, "version must be at least 1")
	}
	if len(r.Content) > 0 {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(r.Content, &probe); err != nil {
			violations = append(violations, "content is not a JSON object")
		}
	}

	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the record.
func (r *ClinicalRecord) Clone() *ClinicalRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Content != nil {
		clone.Content = append(json.RawMessage(nil), r.Content...)
	}
	return &clone
}
