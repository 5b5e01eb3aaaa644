package mvrb

import (
	"cmp"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

func testSettings(capacity, threshold, budget int) Settings {
	s := DefaultSettings()
	s.PageCapacity = capacity
	s.OptimizeThreshold = threshold
	s.EntryPointBudget = budget
	s.RetryBackoff = 0
	s.RuntimeChecks = true
	return s
}

func newIntTree(t *testing.T, store storage.RecordStore, s Settings) *Tree[int, int] {
	t.Helper()
	tree, err := New[int, int](store, cmp.Compare[int], Options{
		Logger:   logging.NewNop(),
		Settings: StaticSettings(s),
	})
	require.NoError(t, err)
	return tree
}

// newFileTree creates a tree on a file store in a temporary directory.
func newFileTree(t *testing.T, s Settings) (*Tree[int, int], *storage.FileStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mvrb_test_*")
	require.NoError(t, err)

	store, err := storage.OpenFileStore(filepath.Join(tmpDir, "tree.mvrb"), storage.DefaultOptions())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open file store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return newIntTree(t, store, s), store, cleanup
}

func fill(t *testing.T, tree *Tree[int, int], from, to int) {
	t.Helper()
	for i := from; i <= to; i++ {
		_, existed, err := tree.Put(i, i*10)
		require.NoError(t, err)
		require.False(t, existed, "key %d", i)
	}
}

func collectKeys(t *testing.T, tree *Tree[int, int]) []int {
	t.Helper()
	var keys []int
	require.NoError(t, tree.Ascend(func(k, _ int) bool {
		keys = append(keys, k)
		return true
	}))
	return keys
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

var errInjected = errors.New("injected store failure")

// faultyStore fails writes while failing is set.
type faultyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	failing   bool
	failAfter int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: storage.NewMemoryStore()}
}

// failWritesAfter lets n more writes succeed and fails the rest.
func (f *faultyStore) failWritesAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = true
	f.failAfter = n
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = false
}

func (f *faultyStore) allow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failing {
		return nil
	}
	if f.failAfter > 0 {
		f.failAfter--
		return nil
	}
	return errInjected
}

func (f *faultyStore) Create(data []byte) (storage.RID, error) {
	if err := f.allow(); err != nil {
		return storage.InvalidRID, err
	}
	return f.MemoryStore.Create(data)
}

func (f *faultyStore) Update(rid storage.RID, data []byte) error {
	if err := f.allow(); err != nil {
		return err
	}
	return f.MemoryStore.Update(rid, data)
}
