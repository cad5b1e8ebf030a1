package config

import (
	"slices"

	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// Sanitize returns a copy of cfg that is safe to log or print. The
// encryption key is replaced by its fingerprint so operators can still
// tell which key a node runs with.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	out.Server.AdminAllowList = slices.Clone(cfg.Server.AdminAllowList)

	if secret := cfg.Security.EncryptionKey; secret != "" {
		key, err := sealer.ParseKey(secret)
		if err != nil {
			out.Security.EncryptionKey = "<redacted, malformed>"
		} else {
			out.Security.EncryptionKey = "<redacted, fingerprint " + sealer.Fingerprint(key) + ">"
			sealer.ZeroKey(key)
		}
	}
	return &out
}
