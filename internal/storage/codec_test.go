package storage

import (
	"errors"
	"testing"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

func testCodec(t *testing.T) codec {
	t.Helper()
	key, err := sealer.RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := sealer.New(key)
	if err != nil {
		t.Fatal(err)
	}
	return codec{cipher: c}
}

func TestCodec_Session(t *testing.T) {
	c := testCodec(t)
	s := &domain.Session{
		ID:        "sess-1",
		UserID:    "u1",
		PatientID: "p1",
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "dolor", Timestamp: 5}},
		Metadata:  domain.SessionMetadata{CreatedAt: 1, UpdatedAt: 2, TokenCount: 30},
	}

	row, err := c.sessionRow(s)
	if err != nil {
		t.Fatalf("sessionRow: %v", err)
	}
	if row.UserID != "u1" || row.PatientID != "p1" || row.MessageCount != 1 || row.TokenCount != 30 {
		t.Errorf("index columns = %+v", row)
	}
	if len(row.Payload) < sealer.Overhead {
		t.Fatalf("payload length %d", len(row.Payload))
	}

	got, err := c.session(&row)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.Messages[0].Content != "dolor" || got.Metadata.UpdatedAt != 2 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestCodec_WrongKey(t *testing.T) {
	row, err := testCodec(t).sessionRow(&domain.Session{ID: "sess-1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testCodec(t).session(&row); !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("error = %v, want ErrIntegrity", err)
	}
}

func TestCodec_IDMismatch(t *testing.T) {
	c := testCodec(t)
	row, err := c.recordRow(&domain.ClinicalRecord{ID: "rec-1", PatientID: "p1", Version: 1, Content: []byte(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	row.ID = "rec-2"
	if _, err := c.record(&row); !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("error = %v, want ErrIntegrity", err)
	}
}

func TestCodec_File(t *testing.T) {
	c := testCodec(t)
	f := &domain.ClinicalFile{ID: "file-1", SessionID: "sess-1", Name: "x.pdf", MediaType: "application/pdf", Size: 9, CreatedAt: 3}

	row, err := c.fileRow(f)
	if err != nil {
		t.Fatal(err)
	}
	if row.Size != 9 || row.MediaType != "application/pdf" || row.SessionID != "sess-1" {
		t.Errorf("index columns = %+v", row)
	}
	got, err := c.file(&row)
	if err != nil || got.Name != "x.pdf" {
		t.Errorf("file = %+v, %v", got, err)
	}
}
