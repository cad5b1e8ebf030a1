package domain

import (
	"errors"
	"fmt"
)

// DomainError is a classified error with a stable code of the form
// CV-{AREA}-{NNNN}. A leading 4 in the number marks a caller error, a
// leading 5 a failure of the store itself.
//
// errors.Is compares codes, so copies made by WithDetails and WithCause
// still match the package-level sentinels.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func define(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	if e.Details == "" {
		return "[" + e.Code + "] " + e.Message
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func (e *DomainError) Unwrap() error { return e.Cause }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Configuration errors (CONF). Fatal for the durable backend; they trigger
// the ephemeral fallback at startup.
var (
	// ErrConfiguration indicates missing or malformed configuration.
	ErrConfiguration = define("CV-CONF-5000", "invalid configuration")

	// ErrMissingKey indicates no encryption key is configured in production.
	ErrMissingKey = define("CV-CONF-5001", "encryption key not configured")

	// ErrMalformedKey indicates the configured key is not 32 base64 bytes.
	ErrMalformedKey = define("CV-CONF-5002", "malformed encryption key")
)

// Crypto errors (CRYP).
var (
	// ErrIntegrity indicates an authentication tag mismatch on decrypt:
	// the payload was tampered with or corrupted.
	ErrIntegrity = define("CV-CRYP-4220", "payload integrity check failed")

	// ErrCrypto indicates a non-integrity failure inside the cipher.
	ErrCrypto = define("CV-CRYP-5000", "cipher failure")
)

// Storage errors (STOR).
var (
	// ErrStorage indicates an I/O failure of the persistent backend.
	ErrStorage = define("CV-STOR-5030", "storage backend failure")

	// ErrNotInitialized indicates an operation before Initialize.
	ErrNotInitialized = define("CV-STOR-5031", "storage not initialized")

	// ErrClosed indicates an operation after Close.
	ErrClosed = define("CV-STOR-5032", "storage closed")

	// ErrInvalidPageToken indicates a page token that cannot be decoded.
	ErrInvalidPageToken = define("CV-STOR-4001", "invalid page token")

	// ErrUnsupported indicates the selected backend lacks the operation.
	ErrUnsupported = define("CV-STOR-4002", "operation not supported by backend")
)

// Validation errors (VALD).
var (
	// ErrValidation indicates entity validation failed.
	ErrValidation = define("CV-VALD-4000", "validation failed")

	// ErrInvalidArgument indicates an invalid operation argument.
	ErrInvalidArgument = define("CV-VALD-4001", "invalid argument")
)
