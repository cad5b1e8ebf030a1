package config

import (
	"time"

	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/storage/cache"
	"github.com/yndnr/clinvault/internal/storage/kv"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// Default configuration values.
const (
	DefaultAdminAddr       = "127.0.0.1:9180"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultAdminRateLimit  = 50

	DefaultBackend = storage.BackendAuto
	DefaultDataDir = "/var/lib/clinvault/data"

	DefaultEnvironment = sealer.EnvDevelopment

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 5
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	kvDefaults := kv.DefaultConfig("")
	return &ServerConfig{
		Server: ServerSection{
			AdminAddr:       DefaultAdminAddr,
			AdminRateLimit:  DefaultAdminRateLimit,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			Backend:    DefaultBackend,
			DataDir:    DefaultDataDir,
			SQLiteFile: storage.DefaultSQLiteFile,
			KVDir:      storage.DefaultKVDir,
			Cache: CacheConfig{
				Capacity:      cache.DefaultCapacity,
				TTL:           cache.DefaultTTL,
				SweepInterval: cache.DefaultSweepInterval,
			},
			KV: KVConfig{
				SyncWrites:  kvDefaults.SyncWrites,
				GCInterval:  kvDefaults.GCInterval,
				GCThreshold: kvDefaults.GCThreshold,
				CacheSizeMB: kvDefaults.CacheSize >> 20,
			},
		},
		Security: SecuritySection{
			Environment: DefaultEnvironment,
		},
		Log: LogSection{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
		Telemetry: TelemetrySection{
			MetricsEnabled: true,
		},
	}
}
