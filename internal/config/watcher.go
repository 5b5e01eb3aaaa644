package config

import (
	"os"
	"sync"
	"time"
)

// ConfigWatcher polls a config file and reports valid changes.
type ConfigWatcher struct {
	filePath     string
	pollInterval time.Duration
	debounce     time.Duration
	lastModTime  time.Time
	lastSize     int64
	lastConfig   *Config
	onChange     func(oldCfg, newCfg *Config)
	onError      func(err error)
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	mu           sync.Mutex
	running      bool
}

// WatcherConfig holds config watcher configuration.
type WatcherConfig struct {
	FilePath     string
	PollInterval time.Duration // Default: 1s
	Debounce     time.Duration // Default: 200ms
	OnChange     func(oldCfg, newCfg *Config)
	OnError      func(err error) // optional, receives load and validation failures
}

// NewConfigWatcher creates a watcher and loads the current file.
func NewConfigWatcher(cfg *WatcherConfig) (*ConfigWatcher, error) {
	if cfg.FilePath == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	initial, err := LoadConfig(cfg.FilePath)
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		filePath:     cfg.FilePath,
		pollInterval: poll,
		debounce:     debounce,
		lastModTime:  info.ModTime(),
		lastSize:     info.Size(),
		lastConfig:   initial,
		onChange:     cfg.OnChange,
		onError:      cfg.OnError,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}, nil
}

// Start begins polling.
func (w *ConfigWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.watchLoop()
}

// Stop stops polling and waits for the loop to exit.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
}

// Current returns the last configuration the watcher accepted.
func (w *ConfigWatcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}

func (w *ConfigWatcher) watchLoop() {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-ticker.C:
			if !w.fileChanged() {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.debounce)
			debounceCh = debounce.C
		case <-debounceCh:
			debounce, debounceCh = nil, nil
			w.reload()
		}
	}
}

func (w *ConfigWatcher) fileChanged() bool {
	info, err := os.Stat(w.filePath)
	if err != nil {
		return false
	}
	if info.ModTime().Equal(w.lastModTime) && info.Size() == w.lastSize {
		return false
	}
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	return true
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.filePath)
	if err == nil {
		if errs := ValidateConfig(cfg); len(errs) > 0 {
			err = errs[0]
		}
	}
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	old := w.lastConfig
	w.lastConfig = cfg
	w.mu.Unlock()

	w.onChange(old, cfg)
}
