package sealer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/clinvault/internal/core/domain"
)

// Deployment environments understood by ResolveKey.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// KeySource tells where a resolved key came from.
type KeySource string

const (
	SourceConfigured  KeySource = "configured"
	SourceDevelopment KeySource = "development-fallback"
	SourceEphemeral   KeySource = "ephemeral"
)

// The development key is fixed so data written by one dev process can be
// read by the next. It protects nothing.
var (
	devSeed = []byte("clinvault development key seed - not for clinical data")
	devInfo = []byte("clinvault/sealer/dev-key/v1")
)

// ResolveKey turns the configured secret into key material.
//
// A non-empty secret must decode (standard or URL-safe base64) to exactly
// 32 bytes. An empty secret is a configuration error in production and
// selects the development key elsewhere, logging a warning on log.
func ResolveKey(secret, env string, log *slog.Logger) ([]byte, KeySource, error) {
	secret = strings.TrimSpace(secret)
	if secret != "" {
		key, err := ParseKey(secret)
		if err != nil {
			return nil, "", err
		}
		return key, SourceConfigured, nil
	}

	if IsProduction(env) {
		return nil, "", domain.ErrConfiguration.
			WithDetails("security.encryption_key is required in production").
			WithCause(domain.ErrMissingKey)
	}

	key, err := DevelopmentKey()
	if err != nil {
		return nil, "", err
	}
	if log == nil {
		log = slog.Default()
	}
	log.Warn("!!! USING DEVELOPMENT ENCRYPTION KEY: payloads are NOT protected; set security.encryption_key before storing clinical data !!!",
		"environment", env,
		"key_source", string(SourceDevelopment),
		"fingerprint", Fingerprint(key))
	return key, SourceDevelopment, nil
}

// ParseKey decodes a base64 secret into a 32-byte key.
func ParseKey(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(secret)
	}
	if err != nil {
		return nil, domain.ErrConfiguration.
			WithDetails("encryption key is not valid base64").
			WithCause(domain.ErrMalformedKey)
	}
	if len(key) != KeySize {
		ZeroKey(key)
		return nil, domain.ErrConfiguration.
			WithDetails(fmt.Sprintf("encryption key decodes to %d bytes, want %d", len(key), KeySize)).
			WithCause(domain.ErrMalformedKey)
	}
	return key, nil
}

// IsProduction reports whether env names a production deployment.
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	}
	return false
}

// DevelopmentKey derives the fixed development key with HKDF-SHA256.
func DevelopmentKey() ([]byte, error) {
	reader := hkdf.New(sha256.New, devSeed, nil, devInfo)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, domain.ErrCrypto.WithDetails("derive development key").WithCause(err)
	}
	return key, nil
}

// RandomKey returns a fresh random 32-byte key.
func RandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, domain.ErrCrypto.WithDetails("generate key").WithCause(err)
	}
	return key, nil
}

// GenerateKey returns a fresh key encoded for the encryption_key setting.
func GenerateKey() (string, error) {
	key, err := RandomKey()
	if err != nil {
		return "", err
	}
	defer ZeroKey(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

// Fingerprint returns a short non-reversible identifier of key, safe to log.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:6])
}

// ZeroKey overwrites key material in memory.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
