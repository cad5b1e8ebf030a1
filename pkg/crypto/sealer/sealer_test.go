package sealer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/yndnr/clinvault/internal/core/domain"
)

var testKey = make([]byte, KeySize)

func init() {
	for i := range testKey {
		testKey[i] = byte(i)
	}
}

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_KeySize(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"32 bytes", make([]byte, 32), false},
		{"16 bytes", make([]byte, 16), true},
		{"24 bytes", make([]byte, 24), true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("New() error should match ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestSealer(t)

	sizes := []int{0, 1, 15, 16, 17, 255, 4096, 1 << 16}
	for _, n := range sizes {
		plaintext := make([]byte, n)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatal(err)
		}

		blob, err := s.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes) error = %v", n, err)
		}
		if len(blob) != n+Overhead {
			t.Errorf("blob length = %d, want %d", len(blob), n+Overhead)
		}

		got, err := s.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes) error = %v", n, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round-trip mismatch for %d bytes", n)
		}
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	s := newTestSealer(t)
	plaintext := []byte("same plaintext")

	a, _ := s.Encrypt(plaintext)
	b, _ := s.Encrypt(plaintext)

	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Error("two encryptions reused a nonce")
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced the same blob")
	}
}

// The blob is [nonce][tag][ciphertext]; the same nonce and plaintext
// sealed directly through GCM must yield the tag at offset 16.
func TestEncrypt_Framing(t *testing.T) {
	s := newTestSealer(t)
	plaintext := []byte("framing check")

	blob, err := s.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	nonce := blob[:NonceSize]
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)

	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]
	if !bytes.Equal(blob[NonceSize:Overhead], tag) {
		t.Error("tag is not at bytes 16..32")
	}
	if !bytes.Equal(blob[Overhead:], ct) {
		t.Error("ciphertext does not follow the tag")
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	s := newTestSealer(t)
	blob, err := s.Encrypt([]byte("historia clínica: hipertensión arterial"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(blob); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit

			got, err := s.Decrypt(tampered)
			if !errors.Is(err, domain.ErrIntegrity) {
				t.Fatalf("flip byte %d bit %d: error = %v, want ErrIntegrity", i, bit, err)
			}
			if got != nil {
				t.Fatalf("flip byte %d bit %d: returned plaintext", i, bit)
			}
		}
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	s := newTestSealer(t)
	blob, _ := s.Encrypt([]byte("x"))

	for _, n := range []int{0, 1, NonceSize, Overhead - 1, Overhead} {
		if _, err := s.Decrypt(blob[:n]); !errors.Is(err, domain.ErrIntegrity) {
			t.Errorf("Decrypt(%d bytes) error = %v, want ErrIntegrity", n, err)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	s := newTestSealer(t)
	blob, _ := s.Encrypt([]byte("secret"))

	otherKey, _ := RandomKey()
	other, err := New(otherKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decrypt(blob); !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("Decrypt with wrong key error = %v, want ErrIntegrity", err)
	}
}

func TestVerifyEncryptionSetup(t *testing.T) {
	if err := VerifyEncryptionSetup(newTestSealer(t)); err != nil {
		t.Errorf("VerifyEncryptionSetup() error = %v", err)
	}
}

type brokenCipher struct{ Cipher }

// Decrypt ignores the tag, which the self-test must catch.
func (b brokenCipher) Decrypt(blob []byte) ([]byte, error) {
	return canary, nil
}

type staticCipher struct{ Cipher }

func (staticCipher) Encrypt(p []byte) ([]byte, error) { return append([]byte(nil), p...), nil }
func (staticCipher) Decrypt(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

func TestVerifyEncryptionSetup_Failures(t *testing.T) {
	s := newTestSealer(t)
	tests := []struct {
		name string
		c    Cipher
	}{
		{"tamper not detected", brokenCipher{Cipher: s}},
		{"deterministic cipher", staticCipher{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyEncryptionSetup(tt.c); !errors.Is(err, domain.ErrCrypto) {
				t.Errorf("VerifyEncryptionSetup() error = %v, want ErrCrypto", err)
			}
		})
	}
}

func BenchmarkEncrypt4K(b *testing.B) {
	s, _ := New(testKey)
	plaintext := make([]byte, 4096)
	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Encrypt(plaintext)
	}
}
