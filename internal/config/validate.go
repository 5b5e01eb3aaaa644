package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig returns every problem found in config. An empty slice
// means the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error
	errs = append(errs, validateStorageConfig(&config.Storage)...)
	errs = append(errs, validateTreeConfig(&config.Tree)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)
	errs = append(errs, validateWatchdogConfig(&config.Watchdog)...)
	return errs
}

func validateStorageConfig(config *StorageConfig) []error {
	var errs []error

	if config.DataDir == "" {
		errs = append(errs, ValidationError{"storage.dataDir", "data directory is required"})
	}
	if config.File == "" {
		errs = append(errs, ValidationError{"storage.file", "file name is required"})
	}
	if config.PageSize < 512 || config.PageSize > 65536 || config.PageSize&(config.PageSize-1) != 0 {
		errs = append(errs, ValidationError{"storage.pageSize", "must be a power of two between 512 and 65536"})
	}
	switch config.Compression {
	case "", "none", "snappy":
	default:
		errs = append(errs, ValidationError{"storage.compression", fmt.Sprintf("unknown compression %q", config.Compression)})
	}
	if _, err := ParseSize(config.ReadCacheSize); err != nil {
		errs = append(errs, ValidationError{"storage.readCacheSize", err.Error()})
	}

	return errs
}

func validateTreeConfig(config *TreeConfig) []error {
	var errs []error

	if config.PageCapacity < 2 {
		errs = append(errs, ValidationError{"tree.pageCapacity", "must be at least 2"})
	}
	if config.EntryPoints < 2 {
		errs = append(errs, ValidationError{"tree.entryPoints", "must be at least 2"})
	}
	if config.EntryPointsFactor <= 0 {
		errs = append(errs, ValidationError{"tree.entryPointsFactor", "must be positive"})
	}
	if config.MaxRetries < 1 {
		errs = append(errs, ValidationError{"tree.maxRetries", "must be at least 1"})
	}
	if config.RetryBackoff < 0 || config.RetryBackoff > time.Minute {
		errs = append(errs, ValidationError{"tree.retryBackoff", "must be between 0 and 1m"})
	}

	return errs
}

func validateLogConfig(config *LogConfig) []error {
	var errs []error

	switch config.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", fmt.Sprintf("invalid level %q", config.Level)})
	}
	switch config.Format {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{"logging.format", fmt.Sprintf("invalid format %q", config.Format)})
	}

	return errs
}

func validateWatchdogConfig(config *WatchdogConfig) []error {
	var errs []error

	if !config.Enabled {
		return nil
	}
	if config.Interval <= 0 {
		errs = append(errs, ValidationError{"watchdog.interval", "must be positive"})
	}
	if n, err := ParseSize(config.MaxHeap); err != nil {
		errs = append(errs, ValidationError{"watchdog.maxHeap", err.Error()})
	} else if n == 0 {
		errs = append(errs, ValidationError{"watchdog.maxHeap", "must be set when the watchdog is enabled"})
	}

	return errs
}
