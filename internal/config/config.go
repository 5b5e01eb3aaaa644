package config

import "time"

// Config is the complete configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Tree     TreeConfig     `yaml:"tree"`
	Logging  LogConfig      `yaml:"logging"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// StorageConfig configures the record store file.
type StorageConfig struct {
	DataDir       string `yaml:"dataDir"`
	File          string `yaml:"file"`
	PageSize      int    `yaml:"pageSize"`
	SyncOnWrite   bool   `yaml:"syncOnWrite"`
	Compression   string `yaml:"compression"`
	ReadCacheSize string `yaml:"readCacheSize"`
}

// TreeConfig holds the tunables of a tree.
type TreeConfig struct {
	PageCapacity      int           `yaml:"pageCapacity"`
	OptimizeThreshold int           `yaml:"optimizeThreshold"`
	EntryPoints       int           `yaml:"entryPoints"`
	EntryPointsFactor float64       `yaml:"entryPointsFactor"`
	MaxRetries        int           `yaml:"maxRetries"`
	RetryBackoff      time.Duration `yaml:"retryBackoff"`
	RuntimeChecks     bool          `yaml:"runtimeChecks"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WatchdogConfig configures the memory watchdog.
type WatchdogConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxHeap  string        `yaml:"maxHeap"`
}
