// Package watchdog raises the low-memory signal of registered trees when the
// process heap grows past a limit.
package watchdog

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
)

// ErrInvalidLimit is returned for a non-positive heap limit.
var ErrInvalidLimit = errors.New("watchdog: heap limit must be positive")

// Target receives the low-memory signal. *mvrb.Tree implements it.
type Target interface {
	SetOptimization(level int)
}

// MemStats is the part of runtime.MemStats the watchdog looks at.
type MemStats struct {
	HeapAlloc uint64
	HeapSys   uint64
	NumGC     uint32
}

// Config configures a Watchdog.
type Config struct {
	Interval time.Duration // Default: 5s
	MaxHeap  uint64
	Logger   logging.Logger
	// ReadStats replaces runtime.ReadMemStats, mainly for tests.
	ReadStats func() MemStats
}

// Stats summarizes the watchdog activity.
type Stats struct {
	Checks    uint64
	Signals   uint64
	LastHeap  uint64
	Targets   int
	LastLevel int
}

// Watchdog periodically compares the heap size with MaxHeap.
type Watchdog struct {
	interval  time.Duration
	maxHeap   uint64
	log       logging.Logger
	readStats func() MemStats

	mu      sync.Mutex
	targets []Target
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	checks    atomic.Uint64
	signals   atomic.Uint64
	lastHeap  atomic.Uint64
	lastLevel atomic.Int32
}

// New creates a stopped watchdog.
func New(cfg Config) (*Watchdog, error) {
	if cfg.MaxHeap == 0 {
		return nil, ErrInvalidLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.ReadStats == nil {
		cfg.ReadStats = readRuntimeStats
	}
	return &Watchdog{
		interval:  cfg.Interval,
		maxHeap:   cfg.MaxHeap,
		log:       cfg.Logger.Named("watchdog"),
		readStats: cfg.ReadStats,
	}, nil
}

func readRuntimeStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{HeapAlloc: m.HeapAlloc, HeapSys: m.HeapSys, NumGC: m.NumGC}
}

// Register adds a target.
func (w *Watchdog) Register(t Target) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets = append(w.targets, t)
}

// Unregister removes a target.
func (w *Watchdog) Unregister(t Target) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, cur := range w.targets {
		if cur == t {
			w.targets = append(w.targets[:i], w.targets[i+1:]...)
			return
		}
	}
}

// Start begins polling in the background.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop(w.stopCh, w.doneCh)
	w.log.Info("watchdog started",
		"interval", w.interval,
		"max_heap", humanize.IBytes(w.maxHeap))
}

// Stop stops polling and waits for the loop to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stop)
	<-done
}

func (w *Watchdog) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check samples the heap once and signals every target when it is over the
// limit. The level grows by one for every full limit exceeded. It returns
// the level sent, or 0.
func (w *Watchdog) Check() int {
	m := w.readStats()
	w.checks.Add(1)
	w.lastHeap.Store(m.HeapAlloc)
	if m.HeapAlloc <= w.maxHeap {
		w.lastLevel.Store(0)
		return 0
	}

	level := int(m.HeapAlloc / w.maxHeap)
	w.lastLevel.Store(int32(level))
	w.signals.Add(1)

	w.mu.Lock()
	targets := append([]Target(nil), w.targets...)
	w.mu.Unlock()

	w.log.Warn("heap over limit, requesting optimization",
		"heap", humanize.IBytes(m.HeapAlloc),
		"limit", humanize.IBytes(w.maxHeap),
		"level", level,
		"targets", len(targets))
	for _, t := range targets {
		t.SetOptimization(level)
	}
	return level
}

// Stats returns the activity counters.
func (w *Watchdog) Stats() Stats {
	w.mu.Lock()
	n := len(w.targets)
	w.mu.Unlock()
	return Stats{
		Checks:    w.checks.Load(),
		Signals:   w.signals.Load(),
		LastHeap:  w.lastHeap.Load(),
		Targets:   n,
		LastLevel: int(w.lastLevel.Load()),
	}
}
