package config

import "time"

// ServerConfig is the root configuration for clinvault-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server" yaml:"server"`
	Storage   StorageSection   `koanf:"storage" yaml:"storage"`
	Security  SecuritySection  `koanf:"security" yaml:"security"`
	Log       LogSection       `koanf:"log" yaml:"log"`
	Telemetry TelemetrySection `koanf:"telemetry" yaml:"telemetry"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	// AdminAddr serves /healthz and /metrics. Empty disables the listener.
	AdminAddr string `koanf:"admin_addr" yaml:"admin_addr"`

	// AdminSocket serves the admin routes on a Unix socket (mode 0600)
	// without the allow-list. Empty disables it.
	AdminSocket string `koanf:"admin_socket" yaml:"admin_socket"`

	// AdminAllowList restricts /metrics and /admin/v1/* to these IPs or
	// CIDRs. Empty allows every client.
	AdminAllowList []string `koanf:"admin_allow_list" yaml:"admin_allow_list"`

	// AdminRateLimit is the per-IP request rate of /admin/v1/* (0 = unlimited).
	AdminRateLimit int `koanf:"admin_rate_limit" yaml:"admin_rate_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// Backend is sqlite, kv, memory or auto.
	Backend    string `koanf:"backend" yaml:"backend"`
	DataDir    string `koanf:"data_dir" yaml:"data_dir"`
	SQLiteFile string `koanf:"sqlite_file" yaml:"sqlite_file"`
	KVDir      string `koanf:"kv_dir" yaml:"kv_dir"`

	Cache CacheConfig `koanf:"cache" yaml:"cache"`
	KV    KVConfig    `koanf:"kv" yaml:"kv"`
}

// CacheConfig configures the hot session cache.
type CacheConfig struct {
	Capacity      int           `koanf:"capacity" yaml:"capacity"`
	TTL           time.Duration `koanf:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
}

// KVConfig tunes the Badger backend.
type KVConfig struct {
	SyncWrites  bool          `koanf:"sync_writes" yaml:"sync_writes"`
	GCInterval  time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold" yaml:"gc_threshold"`
	CacheSizeMB int64         `koanf:"cache_size_mb" yaml:"cache_size_mb"`
}

// SecuritySection configures payload encryption.
type SecuritySection struct {
	// EncryptionKey is the base64 encoded 32-byte key.
	EncryptionKey string `koanf:"encryption_key" yaml:"encryption_key"`

	// Environment is production or development. Production refuses to
	// start without EncryptionKey.
	Environment string `koanf:"environment" yaml:"environment"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level" yaml:"level"`
	Format     string `koanf:"format" yaml:"format"`
	File       string `koanf:"file" yaml:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days" yaml:"max_age_days"`
}

// TelemetrySection configures metrics and tracing.
type TelemetrySection struct {
	MetricsEnabled bool `koanf:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled bool `koanf:"tracing_enabled" yaml:"tracing_enabled"`

	// TraceFile receives exported spans; empty means stderr.
	TraceFile string `koanf:"trace_file" yaml:"trace_file"`
}
