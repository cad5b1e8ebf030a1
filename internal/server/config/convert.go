package config

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/storage/cache"
	"github.com/yndnr/clinvault/internal/storage/kv"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
	"github.com/yndnr/clinvault/internal/telemetry/tracer"
)

// StorageOptions maps the storage and security sections onto selector
// options. reg may be nil.
func (c *ServerConfig) StorageOptions(log *slog.Logger, reg prometheus.Registerer) storage.Options {
	kvCfg := kv.DefaultConfig("")
	kvCfg.SyncWrites = c.Storage.KV.SyncWrites
	if c.Storage.KV.GCInterval > 0 {
		kvCfg.GCInterval = c.Storage.KV.GCInterval
	}
	if c.Storage.KV.GCThreshold > 0 {
		kvCfg.GCThreshold = c.Storage.KV.GCThreshold
	}
	if c.Storage.KV.CacheSizeMB > 0 {
		kvCfg.CacheSize = c.Storage.KV.CacheSizeMB << 20
	}

	return storage.Options{
		Backend:       c.Storage.Backend,
		DataDir:       c.Storage.DataDir,
		SQLiteFile:    c.Storage.SQLiteFile,
		KVDir:         c.Storage.KVDir,
		KV:            kvCfg,
		EncryptionKey: c.Security.EncryptionKey,
		Environment:   c.Security.Environment,
		Logger:        log,
		Registerer:    reg,
	}
}

// CacheConfig maps the cache section. Zero values take cache defaults.
func (c *ServerConfig) CacheConfig() cache.Config {
	return cache.Config{
		Capacity:      c.Storage.Cache.Capacity,
		TTL:           c.Storage.Cache.TTL,
		SweepInterval: c.Storage.Cache.SweepInterval,
	}
}

// LoggerConfig maps the log section.
func (c *ServerConfig) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	lc.File = c.Log.File
	if c.Log.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Log.MaxSizeMB
	}
	if c.Log.MaxBackups > 0 {
		lc.MaxBackups = c.Log.MaxBackups
	}
	lc.MaxAgeDays = c.Log.MaxAgeDays
	return lc
}

// TracerConfig maps the telemetry section.
func (c *ServerConfig) TracerConfig(serviceName, version string) tracer.Config {
	return tracer.Config{
		Enabled:        c.Telemetry.TracingEnabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		File:           c.Telemetry.TraceFile,
	}
}
