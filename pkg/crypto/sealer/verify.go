package sealer

import (
	"bytes"
	"errors"

	"github.com/yndnr/clinvault/internal/core/domain"
)

var canary = []byte(`{"canary":"clinvault encryption self-test","messages":["ñandú","心电图"]}`)

// VerifyEncryptionSetup is the startup self-test of a Cipher. It checks a
// round-trip of canary data, that two encryptions of the same plaintext
// differ, and that a flipped bit is rejected with ErrIntegrity.
func VerifyEncryptionSetup(c Cipher) error {
	blob, err := c.Encrypt(canary)
	if err != nil {
		return domain.ErrCrypto.WithDetails("self-test encrypt").WithCause(err)
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		return domain.ErrCrypto.WithDetails("self-test decrypt").WithCause(err)
	}
	if !bytes.Equal(got, canary) {
		return domain.ErrCrypto.WithDetails("self-test round-trip mismatch")
	}

	again, err := c.Encrypt(canary)
	if err != nil {
		return domain.ErrCrypto.WithDetails("self-test encrypt").WithCause(err)
	}
	if bytes.Equal(blob, again) {
		return domain.ErrCrypto.WithDetails("self-test nonce reuse")
	}

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := c.Decrypt(tampered); !errors.Is(err, domain.ErrIntegrity) {
		return domain.ErrCrypto.WithDetails("self-test tamper not detected").WithCause(err)
	}

	return nil
}
