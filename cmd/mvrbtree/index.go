package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/mvrbtree/internal/config"
	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage/mvrb"
	"github.com/KilimcininKorOglu/mvrbtree/internal/watchdog"
)

// commonFlags are accepted by every command that opens the index.
type commonFlags struct {
	configFile string
	dataDir    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "Path to configuration file")
	fs.StringVar(&c.dataDir, "data", "", "Data directory (overrides config)")
}

// loadConfig reads the config file, or the defaults without one, and
// applies environment and flag overrides.
func (c *commonFlags) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if c.configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(c.configFile); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	if c.dataDir != "" {
		cfg.Storage.DataDir = c.dataDir
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	return cfg, nil
}

// applyEnvOverrides applies MVRB_<SECTION>_<KEY> environment variables.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("MVRB_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MVRB_STORAGE_COMPRESSION"); v != "" {
		cfg.Storage.Compression = v
	}
	if v := os.Getenv("MVRB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MVRB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MVRB_LOGGING_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
}

// treeSettings converts the configured tunables.
func treeSettings(tc config.TreeConfig) mvrb.Settings {
	return mvrb.Settings{
		PageCapacity:         tc.PageCapacity,
		OptimizeThreshold:    tc.OptimizeThreshold,
		EntryPointBudget:     tc.EntryPoints,
		EntryPointLoadFactor: tc.EntryPointsFactor,
		MaxRetries:           tc.MaxRetries,
		RetryBackoff:         tc.RetryBackoff,
		RuntimeChecks:        tc.RuntimeChecks,
	}
}

// index is an open tree with the stack underneath it.
type index struct {
	tree     *mvrb.Tree[string, string]
	file     *storage.FileStore
	cache    *storage.CachedStore
	store    storage.RecordStore
	manager  *config.ConfigManager
	watchdog *watchdog.Watchdog
	log      logging.Logger
	readOnly bool
}

func openIndex(flags *commonFlags, readOnly bool) (*index, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	compression, _ := storage.ParseCompression(cfg.Storage.Compression)
	opts := storage.DefaultOptions().
		WithPageSize(cfg.Storage.PageSize).
		WithSyncOnWrite(cfg.Storage.SyncOnWrite).
		WithCompression(compression).
		WithReadOnly(readOnly)
	if readOnly {
		opts.CreateIfMissing = false
	} else if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	path := filepath.Join(cfg.Storage.DataDir, cfg.Storage.File)
	file, err := storage.OpenFileStore(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	ix := &index{file: file, store: file, log: log, readOnly: readOnly}

	cacheSize, err := config.ParseSize(cfg.Storage.ReadCacheSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	if cacheSize > 0 {
		if ix.cache, err = storage.NewCachedStore(file, cacheSize); err != nil {
			file.Close()
			return nil, err
		}
		ix.store = ix.cache
	}

	ix.manager = config.NewConfigManager(cfg, flags.configFile)
	treeOpts := mvrb.Options{
		Logger: log,
		Settings: mvrb.SettingsFunc(func() mvrb.Settings {
			return treeSettings(ix.manager.Tree())
		}),
	}
	if header := file.RootRecord(); header.IsValid() {
		ix.tree, err = mvrb.Open[string, string](ix.store, header, strings.Compare, treeOpts)
	} else {
		ix.tree, err = mvrb.New[string, string](ix.store, strings.Compare, treeOpts)
	}
	if err != nil {
		ix.closeStore()
		return nil, err
	}

	if cfg.Watchdog.Enabled && !readOnly {
		maxHeap, err := config.ParseSize(cfg.Watchdog.MaxHeap)
		if err != nil {
			ix.closeStore()
			return nil, err
		}
		ix.watchdog, err = watchdog.New(watchdog.Config{
			Interval: cfg.Watchdog.Interval,
			MaxHeap:  uint64(maxHeap),
			Logger:   log,
		})
		if err != nil {
			ix.closeStore()
			return nil, err
		}
		ix.watchdog.Register(ix.tree)
		ix.watchdog.Start()
	}
	return ix, nil
}

// commit writes pending changes and records the tree header in the file.
func (ix *index) commit() error {
	if _, err := ix.tree.CommitChanges(); err != nil {
		return err
	}
	if rid := ix.tree.HeaderRID(); rid != ix.file.RootRecord() {
		if err := ix.file.SetRootRecord(rid); err != nil {
			return err
		}
	}
	return ix.store.Sync()
}

func (ix *index) close() error {
	if ix.watchdog != nil {
		ix.watchdog.Stop()
	}
	var err error
	if !ix.readOnly {
		err = ix.commit()
	}
	err = multierr.Append(err, ix.closeStore())
	// stderr sync fails on some platforms; nothing to report there
	_ = ix.log.Sync()
	return err
}

func (ix *index) closeStore() error {
	return ix.store.Close()
}
