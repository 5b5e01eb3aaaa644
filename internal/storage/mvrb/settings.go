package mvrb

import "time"

// Settings are the tunables of a tree. They are read from the tree's
// SettingsSource when the tree is created and again on every optimization.
type Settings struct {
	// PageCapacity is the maximum number of slots per node.
	PageCapacity int
	// OptimizeThreshold is the number of inserts after which an
	// optimization is forced. Zero or negative disables it.
	OptimizeThreshold int
	// EntryPointBudget is the number of entry points kept by an optimization.
	EntryPointBudget int
	// EntryPointLoadFactor scales the budget into the resident node count
	// at which opportunistic optimizations start working.
	EntryPointLoadFactor float64
	// MaxRetries bounds the low-memory retries of a single search.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
	// RuntimeChecks validates every node loaded from storage.
	RuntimeChecks bool
}

// Default values.
const (
	DefaultPageCapacity         = 64
	DefaultOptimizeThreshold    = 5000
	DefaultEntryPointBudget     = 64
	DefaultEntryPointLoadFactor = 1.0
	DefaultMaxRetries           = 10
	DefaultRetryBackoff         = 300 * time.Millisecond
)

// DefaultSettings returns the default tunables.
func DefaultSettings() Settings {
	return Settings{
		PageCapacity:         DefaultPageCapacity,
		OptimizeThreshold:    DefaultOptimizeThreshold,
		EntryPointBudget:     DefaultEntryPointBudget,
		EntryPointLoadFactor: DefaultEntryPointLoadFactor,
		MaxRetries:           DefaultMaxRetries,
		RetryBackoff:         DefaultRetryBackoff,
	}
}

func (s Settings) normalized() Settings {
	if s.PageCapacity < 2 {
		s.PageCapacity = DefaultPageCapacity
	}
	if s.EntryPointBudget < 2 {
		s.EntryPointBudget = DefaultEntryPointBudget
	}
	if s.EntryPointLoadFactor <= 0 {
		s.EntryPointLoadFactor = DefaultEntryPointLoadFactor
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryBackoff < 0 {
		s.RetryBackoff = 0
	}
	return s
}

// SettingsSource supplies the current settings.
type SettingsSource interface {
	TreeSettings() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

// TreeSettings implements SettingsSource.
func (s StaticSettings) TreeSettings() Settings { return Settings(s) }

// SettingsFunc adapts a function to SettingsSource.
type SettingsFunc func() Settings

// TreeSettings implements SettingsSource.
func (f SettingsFunc) TreeSettings() Settings { return f() }
