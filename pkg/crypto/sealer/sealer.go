package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/yndnr/clinvault/internal/core/domain"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the per-message nonce length in bytes.
	NonceSize = 16

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// Overhead is the number of bytes a blob adds to its plaintext.
	Overhead = NonceSize + TagSize
)

// Cipher seals and opens opaque payload blobs.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

// Sealer is the AES-256-GCM Cipher. It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer from a 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, domain.ErrConfiguration.
			WithDetails("encryption key must be 32 bytes").
			WithCause(domain.ErrMalformedKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.ErrCrypto.WithCause(err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, domain.ErrCrypto.WithCause(err)
	}

	return &Sealer{aead: aead}, nil
}

// Encrypt seals plaintext into a [nonce][tag][ciphertext] blob.
func (s *Sealer) Encrypt(plaintext []byte) ([]byte, error) {
	blob := make([]byte, Overhead+len(plaintext))
	nonce := blob[:NonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.ErrCrypto.WithDetails("nonce generation failed").WithCause(err)
	}

	// GCM emits ciphertext||tag; move the tag in front of the ciphertext.
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - TagSize
	copy(blob[NonceSize:Overhead], sealed[ctLen:])
	copy(blob[Overhead:], sealed[:ctLen])
	return blob, nil
}

// Decrypt verifies and opens a blob produced by Encrypt.
func (s *Sealer) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, domain.ErrIntegrity.WithDetails("blob shorter than nonce and tag")
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize:Overhead]
	ct := blob[Overhead:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.ErrIntegrity.WithCause(err)
	}
	return plaintext, nil
}
