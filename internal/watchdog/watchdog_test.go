package watchdog

import (
	"cmp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage/mvrb"
)

type recorder struct {
	mu     sync.Mutex
	levels []int
}

func (r *recorder) SetOptimization(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.levels...)
}

func fixedHeap(heap *atomic.Uint64) func() MemStats {
	return func() MemStats { return MemStats{HeapAlloc: heap.Load()} }
}

func TestNewRejectsZeroLimit(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestCheckSignalsOverLimit(t *testing.T) {
	var heap atomic.Uint64
	core, logs := observer.New(zap.DebugLevel)
	w, err := New(Config{
		MaxHeap:   100,
		Logger:    logging.NewWithCore(core),
		ReadStats: fixedHeap(&heap),
	})
	require.NoError(t, err)

	r := &recorder{}
	w.Register(r)

	heap.Store(80)
	assert.Zero(t, w.Check())
	heap.Store(250)
	assert.Equal(t, 2, w.Check())
	heap.Store(100)
	assert.Zero(t, w.Check())

	assert.Equal(t, []int{2}, r.seen())
	stats := w.Stats()
	assert.Equal(t, uint64(3), stats.Checks)
	assert.Equal(t, uint64(1), stats.Signals)
	assert.Equal(t, 1, stats.Targets)

	entries := logs.FilterMessage("heap over limit, requesting optimization").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "250 B", entries[0].ContextMap()["heap"])

	w.Unregister(r)
	heap.Store(500)
	w.Check()
	assert.Len(t, r.seen(), 1)
}

func TestStartStop(t *testing.T) {
	var heap atomic.Uint64
	heap.Store(1 << 20)
	w, err := New(Config{MaxHeap: 1024, Interval: time.Millisecond, ReadStats: fixedHeap(&heap)})
	require.NoError(t, err)
	r := &recorder{}
	w.Register(r)

	w.Start()
	w.Start()
	require.Eventually(t, func() bool { return len(r.seen()) >= 2 }, time.Second, time.Millisecond)
	w.Stop()
	w.Stop()

	n := len(r.seen())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, len(r.seen()))
}

func TestSignalReachesTree(t *testing.T) {
	tree, err := mvrb.New[int, int](storage.NewMemoryStore(), cmp.Compare[int], mvrb.Options{})
	require.NoError(t, err)

	var heap atomic.Uint64
	heap.Store(3000)
	w, err := New(Config{MaxHeap: 1000, ReadStats: fixedHeap(&heap)})
	require.NoError(t, err)
	w.Register(tree)

	w.Check()
	assert.Equal(t, 3, tree.Optimization())

	_, _, err = tree.Put(1, 1)
	require.NoError(t, err)
	assert.Zero(t, tree.Optimization())
}
