package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	if got := ErrStorage.Error(); got != "[CV-STOR-5030] storage backend failure" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrIntegrity.WithDetails("session s1").Error(); got != "[CV-CRYP-4220] payload integrity check failed: session s1" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDomainError_IsByCode(t *testing.T) {
	wrapped := fmt.Errorf("load session: %w", ErrIntegrity.WithDetails("tag mismatch").WithCause(errors.New("gcm")))

	if !errors.Is(wrapped, ErrIntegrity) {
		t.Error("wrapped copy should match its sentinel")
	}
	if errors.Is(wrapped, ErrStorage) {
		t.Error("different codes must not match")
	}
	if errors.Is(ErrStorage, errors.New("[CV-STOR-5030] storage backend failure")) {
		t.Error("a plain error with the same text must not match")
	}
}

func TestDomainError_CopiesLeaveSentinelAlone(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrStorage.WithDetails("put session").WithCause(cause)

	if ErrStorage.Details != "" || ErrStorage.Cause != nil {
		t.Fatalf("sentinel mutated: %+v", ErrStorage)
	}
	if err.Details != "put session" || !errors.Is(err, cause) {
		t.Errorf("copy = %+v", err)
	}
	if errors.Unwrap(ErrStorage) != nil {
		t.Error("sentinel should have no cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrMalformedKey, "CV-CONF-5002"},
		{fmt.Errorf("open: %w", ErrUnsupported.WithDetails("backup")), "CV-STOR-4002"},
		{errors.New("plain"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSentinelCodes(t *testing.T) {
	seen := make(map[string]string)
	for _, e := range []*DomainError{
		ErrConfiguration, ErrMissingKey, ErrMalformedKey,
		ErrIntegrity, ErrCrypto,
		ErrStorage, ErrNotInitialized, ErrClosed, ErrInvalidPageToken, ErrUnsupported,
		ErrValidation, ErrInvalidArgument,
	} {
		if !strings.HasPrefix(e.Code, "CV-") || len(e.Code) != len("CV-XXXX-0000") {
			t.Errorf("malformed code %q", e.Code)
		}
		if prev, dup := seen[e.Code]; dup {
			t.Errorf("code %s used by %q and %q", e.Code, prev, e.Message)
		}
		seen[e.Code] = e.Message
	}
}
