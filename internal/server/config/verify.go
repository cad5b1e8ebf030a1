package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// Verify validates the configuration. It does not touch the filesystem;
// an unusable data directory is handled by the storage fallback.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.AdminAddr); err != nil {
			return fmt.Errorf("server.admin_addr: %w", err)
		}
	}
	if cfg.AdminSocket != "" && !filepath.IsAbs(cfg.AdminSocket) {
		return fmt.Errorf("server.admin_socket %q must be an absolute path", cfg.AdminSocket)
	}
	for _, entry := range cfg.AdminAllowList {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("server.admin_allow_list: %q is not an IP or CIDR", entry)
		}
	}
	if cfg.AdminRateLimit < 0 {
		return errors.New("server.admin_rate_limit must not be negative")
	}
	if cfg.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch strings.ToLower(cfg.Backend) {
	case "", storage.BackendAuto, string(backend.KindSQLite), string(backend.KindKV), string(backend.KindMemory):
	default:
		return fmt.Errorf("storage.backend %q is not one of auto, sqlite, kv, memory", cfg.Backend)
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.Cache.Capacity < 0 {
		return errors.New("storage.cache.capacity must not be negative")
	}
	if cfg.Cache.TTL < 0 || cfg.Cache.SweepInterval < 0 {
		return errors.New("storage.cache durations must not be negative")
	}
	if cfg.KV.GCThreshold < 0 || cfg.KV.GCThreshold >= 1 {
		return errors.New("storage.kv.gc_threshold must be in [0, 1)")
	}
	return nil
}

// verifySecurity rejects a malformed key early. A missing key is left to
// the storage selector so the server can still start degraded.
func verifySecurity(cfg *SecuritySection) error {
	if cfg.EncryptionKey == "" {
		return nil
	}
	key, err := sealer.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key: %w", err)
	}
	sealer.ZeroKey(key)
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q is not json or text", cfg.Format)
	}
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
