// Package sealer provides the at-rest cipher of clinvault.
//
// Every payload is sealed with AES-256-GCM under a fresh 16-byte random
// nonce. The stored blob is a single opaque byte string with the fixed
// framing
//
//	[nonce 16B][tag 16B][ciphertext]
//
// and any future reader must parse exactly this layout. Decrypt verifies
// the tag before returning anything; a mismatch or a truncated blob fails
// with domain.ErrIntegrity and never yields partial plaintext.
//
// Key material comes from a single base64-encoded 32-byte secret
// (ResolveKey). Outside production an empty secret selects a deterministic
// development key and a warning is logged; in production it is a
// configuration error.
//
// Usage:
//
//	key, src, err := sealer.ResolveKey(secret, sealer.EnvProduction, log)
//	s, err := sealer.New(key)
//	blob, err := s.Encrypt(plaintext)
//	plaintext, err := s.Decrypt(blob)
package sealer
