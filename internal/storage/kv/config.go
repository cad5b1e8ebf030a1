package kv

import "time"

// Config configures the Badger backend.
type Config struct {
	// Dir is the Badger directory.
	Dir string

	// GCInterval is the interval between value log GC runs. Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC. Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes. Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes. Default: 256MB
	ValueLogFileSize int64

	NumMemtables            int
	NumLevelZeroTables      int
	NumLevelZeroTablesStall int

	// SyncWrites fsyncs every commit. Default: true
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                     dir,
		GCInterval:              10 * time.Minute,
		GCThreshold:             0.5,
		CacheSize:               64 << 20,
		ValueLogFileSize:        256 << 20,
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              true,
	}
}
