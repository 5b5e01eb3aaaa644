package config

import "time"

// DefaultConfig returns the configuration used when a value is not set.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:       "./data",
			File:          "index.mvrb",
			PageSize:      4096,
			Compression:   "snappy",
			ReadCacheSize: "16MB",
		},
		Tree: TreeConfig{
			PageCapacity:      64,
			OptimizeThreshold: 5000,
			EntryPoints:       64,
			EntryPointsFactor: 1.0,
			MaxRetries:        10,
			RetryBackoff:      300 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Watchdog: WatchdogConfig{
			Enabled:  false,
			Interval: 5 * time.Second,
			MaxHeap:  "512MB",
		},
	}
}
