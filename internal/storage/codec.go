package storage

import (
	"encoding/json"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// codec converts entities to sealed rows and back.
type codec struct {
	cipher sealer.Cipher
}

func (c codec) seal(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, domain.ErrValidation.WithDetails("payload is not serializable").WithCause(err)
	}
	return c.cipher.Encrypt(plain)
}

// open authenticates and decodes blob into v. wantID guards against a blob
// copied between rows.
func (c codec) open(blob []byte, v any, id func() string, wantID string) error {
	plain, err := c.cipher.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return domain.ErrStorage.WithDetails("decode payload").WithCause(err)
	}
	if got := id(); got != wantID {
		return domain.ErrIntegrity.WithDetails("payload belongs to " + got + ", not " + wantID)
	}
	return nil
}

func (c codec) sessionRow(s *domain.Session) (backend.SessionRow, error) {
	payload, err := c.seal(s)
	if err != nil {
		return backend.SessionRow{}, err
	}
	return backend.SessionRow{
		ID:           s.ID,
		UserID:       s.UserID,
		PatientID:    s.PatientID,
		Payload:      payload,
		MessageCount: s.MessageCount(),
		TokenCount:   s.Metadata.TokenCount,
		CreatedAt:    s.Metadata.CreatedAt,
		UpdatedAt:    s.Metadata.UpdatedAt,
	}, nil
}

func (c codec) session(row *backend.SessionRow) (*domain.Session, error) {
	var s domain.Session
	if err := c.open(row.Payload, &s, func() string { return s.ID }, row.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c codec) fileRow(f *domain.ClinicalFile) (backend.FileRow, error) {
	payload, err := c.seal(f)
	if err != nil {
		return backend.FileRow{}, err
	}
	return backend.FileRow{
		ID:        f.ID,
		SessionID: f.SessionID,
		Payload:   payload,
		Size:      f.Size,
		MediaType: f.MediaType,
		CreatedAt: f.CreatedAt,
	}, nil
}

func (c codec) file(row *backend.FileRow) (*domain.ClinicalFile, error) {
	var f domain.ClinicalFile
	if err := c.open(row.Payload, &f, func() string { return f.ID }, row.ID); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c codec) recordRow(r *domain.ClinicalRecord) (backend.RecordRow, error) {
	payload, err := c.seal(r)
	if err != nil {
		return backend.RecordRow{}, err
	}
	return backend.RecordRow{
		ID:        r.ID,
		PatientID: r.PatientID,
		Payload:   payload,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (c codec) record(row *backend.RecordRow) (*domain.ClinicalRecord, error) {
	var r domain.ClinicalRecord
	if err := c.open(row.Payload, &r, func() string { return r.ID }, row.ID); err != nil {
		return nil, err
	}
	return &r, nil
}
