package config

import (
	"sync"

	"github.com/pkg/errors"
)

// ConfigManager holds the active configuration and swaps it on reload.
type ConfigManager struct {
	config     *Config
	configFile string
	mu         sync.RWMutex
	onUpdate   func(old, new *Config)
}

// NewConfigManager creates a manager for cfg loaded from configFile, which
// may be empty when the configuration did not come from a file.
func NewConfigManager(cfg *Config, configFile string) *ConfigManager {
	return &ConfigManager{config: cfg, configFile: configFile}
}

// SetOnUpdate sets the callback invoked after a successful update.
func (m *ConfigManager) SetOnUpdate(fn func(old, new *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// GetConfig returns a copy of the current config.
func (m *ConfigManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.config
	return &cp
}

// Tree returns the current tree tunables.
func (m *ConfigManager) Tree() TreeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Tree
}

// GetConfigFile returns the config file path.
func (m *ConfigManager) GetConfigFile() string {
	return m.configFile
}

// Reload re-reads and validates the config file.
func (m *ConfigManager) Reload() error {
	if m.configFile == "" {
		return ErrMissingConfigFile
	}
	cfg, err := LoadConfig(m.configFile)
	if err != nil {
		return err
	}
	return m.UpdateConfig(cfg)
}

// UpdateConfig validates cfg and makes it current.
func (m *ConfigManager) UpdateConfig(cfg *Config) error {
	if errs := ValidateConfig(cfg); len(errs) > 0 {
		return errors.Wrap(errs[0], "validation failed")
	}

	m.mu.Lock()
	old := m.config
	m.config = cfg
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(old, cfg)
	}
	return nil
}
