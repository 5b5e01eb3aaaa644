package mvrb

import (
	"cmp"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// =============================================================================
// Construction and Loading Tests
// =============================================================================

func TestNewRejectsMissingCollaborators(t *testing.T) {
	_, err := New[int, int](nil, cmp.Compare[int], Options{})
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = New[int, int](storage.NewMemoryStore(), nil, Options{})
	assert.ErrorIs(t, err, ErrNilCompare)

	_, err = Open[int, int](storage.NewMemoryStore(), storage.InvalidRID, cmp.Compare[int], Options{})
	assert.ErrorIs(t, err, storage.ErrInvalidRID)
}

func TestSequentialInsertsStayBounded(t *testing.T) {
	tree := newIntTree(t, storage.NewMemoryStore(), testSettings(4, 50, 16))

	fill(t, tree, 1, 1000)

	assert.Equal(t, 1000, tree.Size())
	stats := tree.Stats()
	assert.LessOrEqual(t, stats.EntryPoints, 16)
	assert.Positive(t, stats.Evictions)
	assert.Zero(t, stats.DirtyNodes)

	assert.Equal(t, seq(1, 1000), collectKeys(t, tree))
	require.NoError(t, tree.Verify())
}

func TestCommitUnloadLoad(t *testing.T) {
	store := storage.NewMemoryStore()
	tree, err := New[string, int](store, strings.Compare, Options{})
	require.NoError(t, err)

	_, existed, err := tree.Put("A", 1)
	require.NoError(t, err)
	assert.False(t, existed)
	header := tree.HeaderRID()
	require.True(t, header.IsValid())

	require.NoError(t, tree.Unload())
	v, ok, err := tree.Get("A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	reopened, err := Open[string, int](store, header, strings.Compare, Options{})
	require.NoError(t, err)
	assert.Equal(t, tree.ID(), reopened.ID())
	assert.Equal(t, 1, reopened.Size())
	v, ok, err = reopened.Get("A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLoadIsRepeatable(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 100)

	require.NoError(t, tree.Load())
	require.NoError(t, tree.Load())
	assert.Equal(t, 100, tree.Size())
	assert.Equal(t, seq(1, 100), collectKeys(t, tree))
}

func TestCommitIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 50)

	before := store.Stats().Writes()
	written, err := tree.CommitChanges()
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Equal(t, before, store.Stats().Writes())
}

// =============================================================================
// Put and Remove Tests
// =============================================================================

func TestPutReplacesValue(t *testing.T) {
	tree := newIntTree(t, storage.NewMemoryStore(), testSettings(4, 0, 8))
	fill(t, tree, 1, 20)

	old, existed, err := tree.Put(7, 700)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 70, old)
	assert.Equal(t, 20, tree.Size())

	v, ok, err := tree.Get(7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 700, v)
}

func TestRemove(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 200)

	for i := 1; i <= 200; i += 2 {
		v, ok, err := tree.Remove(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i*10, v)
	}
	_, ok, err := tree.Remove(1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 100, tree.Size())
	require.NoError(t, tree.Verify())

	var want []int
	for i := 2; i <= 200; i += 2 {
		want = append(want, i)
	}
	assert.Equal(t, want, collectKeys(t, tree))

	// the surviving structure is what storage holds
	require.NoError(t, tree.Unload())
	assert.Equal(t, want, collectKeys(t, tree))
	require.NoError(t, tree.Verify())
}

func TestRemoveEverythingDeletesRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 100)

	for i := 100; i >= 1; i-- {
		_, ok, err := tree.Remove(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Zero(t, tree.Size())
	assert.Equal(t, 1, store.Stats().Records, "only the tree header is left")

	_, ok, err := tree.Get(5)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// Query Tests
// =============================================================================

func TestOrderedQueries(t *testing.T) {
	tree := newIntTree(t, storage.NewMemoryStore(), testSettings(4, 0, 8))

	_, ok, err := tree.First()
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 10; i <= 500; i += 10 {
		_, _, err := tree.Put(i, -i)
		require.NoError(t, err)
	}

	first, ok, err := tree.First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry[int, int]{Key: 10, Value: -10}, first)

	last, ok, err := tree.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 500, last.Key)

	tests := []struct {
		key         int
		floor, ceil int
		hasFloor    bool
		hasCeil     bool
	}{
		{key: 5, ceil: 10, hasCeil: true},
		{key: 10, floor: 10, ceil: 10, hasFloor: true, hasCeil: true},
		{key: 255, floor: 250, ceil: 260, hasFloor: true, hasCeil: true},
		{key: 501, floor: 500, hasFloor: true},
	}
	for _, tt := range tests {
		f, ok, err := tree.Floor(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.hasFloor, ok, "floor(%d)", tt.key)
		if ok {
			assert.Equal(t, tt.floor, f.Key, "floor(%d)", tt.key)
		}
		c, ok, err := tree.Ceiling(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.hasCeil, ok, "ceiling(%d)", tt.key)
		if ok {
			assert.Equal(t, tt.ceil, c.Key, "ceiling(%d)", tt.key)
		}
	}
}

func TestContainsKeyAndValue(t *testing.T) {
	tree := newIntTree(t, storage.NewMemoryStore(), testSettings(4, 0, 8))
	fill(t, tree, 1, 30)

	ok, err := tree.ContainsKey(30)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tree.ContainsKey(31)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tree.ContainsValue(150)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tree.ContainsValue(155)
	require.NoError(t, err)
	assert.False(t, ok)
}

type tagged struct {
	Name   string
	weight int
}

type release struct {
	major, minor int
}

func (r release) Equal(o release) bool { return r.major == o.major }

func TestContainsValueWithUnexportedFields(t *testing.T) {
	tree, err := New[int, tagged](storage.NewMemoryStore(), cmp.Compare[int], Options{})
	require.NoError(t, err)
	for i, name := range []string{"a", "b", "c"} {
		_, _, err := tree.Put(i, tagged{Name: name, weight: i})
		require.NoError(t, err)
	}

	ok, err := tree.ContainsValue(tagged{Name: "b", weight: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tree.ContainsValue(tagged{Name: "b", weight: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	releases, err := New[int, release](storage.NewMemoryStore(), cmp.Compare[int], Options{})
	require.NoError(t, err)
	_, _, err = releases.Put(1, release{major: 2, minor: 7})
	require.NoError(t, err)
	ok, err = releases.ContainsValue(release{major: 2, minor: 0})
	require.NoError(t, err)
	assert.True(t, ok, "the Equal method decides")
}

func TestPutAllCommitsOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(8, 0, 8))

	entries := make([]Entry[int, int], 0, 64)
	for i := 64; i >= 1; i-- {
		entries = append(entries, Entry[int, int]{Key: i, Value: i})
	}
	require.NoError(t, tree.PutAll(entries))
	assert.Equal(t, 64, tree.Size())
	assert.Zero(t, tree.Stats().DirtyNodes)
	assert.Equal(t, seq(1, 64), collectKeys(t, tree))
}

// =============================================================================
// Clear, Delete and Unload Tests
// =============================================================================

func TestClearAndDelete(t *testing.T) {
	store := storage.NewMemoryStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 100)
	header := tree.HeaderRID()

	require.NoError(t, tree.Clear())
	assert.Zero(t, tree.Size())
	assert.Empty(t, collectKeys(t, tree))
	assert.Equal(t, 1, store.Stats().Records)
	assert.Equal(t, header, tree.HeaderRID())

	fill(t, tree, 1, 10)
	require.NoError(t, tree.Delete())
	assert.Zero(t, store.Stats().Records)
	assert.False(t, tree.HeaderRID().IsValid())
	assert.False(t, store.Exists(header))

	_, _, err := tree.Put(1, 1)
	assert.ErrorIs(t, err, ErrTreeDeleted)
	_, _, err = tree.Get(1)
	assert.ErrorIs(t, err, ErrTreeDeleted)
	assert.ErrorIs(t, tree.Unload(), ErrTreeDeleted)
	_, err = tree.Iterator()
	assert.ErrorIs(t, err, ErrTreeDeleted)
}

func TestUnloadDiscardsUncommittedChanges(t *testing.T) {
	tree := newIntTree(t, storage.NewMemoryStore(), testSettings(4, 0, 8))
	fill(t, tree, 1, 10)

	it, err := tree.Iterator()
	require.NoError(t, err)
	_, _, err = it.Next()
	require.NoError(t, err)
	_, err = it.Update(-1)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Stats().DirtyNodes)

	require.NoError(t, tree.Unload())
	v, _, err := tree.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestFileBackedTree(t *testing.T) {
	tree, store, cleanup := newFileTree(t, testSettings(4, 0, 8))
	defer cleanup()

	fill(t, tree, 1, 300)
	_, err := tree.Optimize(true)
	require.NoError(t, err)
	require.NoError(t, store.SetRootRecord(tree.HeaderRID()))

	reopened, err := Open[int, int](store, store.RootRecord(), cmp.Compare[int], Options{
		Settings: StaticSettings(testSettings(4, 0, 8)),
	})
	require.NoError(t, err)
	assert.Equal(t, 300, reopened.Size())
	assert.Equal(t, seq(1, 300), collectKeys(t, reopened))
	require.NoError(t, reopened.Verify())
}

// =============================================================================
// Commit Failure Tests
// =============================================================================

func TestCommitFailureKeepsPendingChanges(t *testing.T) {
	store := newFaultyStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 40)

	store.failWritesAfter(1)
	_, _, err := tree.Put(41, 410)
	require.Error(t, err)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, errInjected)
	assert.Positive(t, tree.Stats().DirtyNodes)

	store.heal()
	written, err := tree.CommitChanges()
	require.NoError(t, err)
	assert.Positive(t, written)

	require.NoError(t, tree.Unload())
	v, ok, err := tree.Get(41)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 410, v)
	assert.Equal(t, seq(1, 41), collectKeys(t, tree))
}

func TestPartialCommitSurvivesEviction(t *testing.T) {
	entries := make([]Entry[int, int], 0, 40)
	for i := 1; i <= 40; i++ {
		entries = append(entries, Entry[int, int]{Key: i, Value: i * 10})
	}

	for okWrites := 0; okWrites < 20; okWrites++ {
		store := newFaultyStore()
		tree := newIntTree(t, store, testSettings(2, 0, 2))

		store.failWritesAfter(okWrites)
		err := tree.PutAll(entries)
		require.ErrorIs(t, err, errInjected, "after %d writes", okWrites)

		// nodes written before the failure still reference unwritten ones
		_, err = tree.Optimize(true)
		require.NoError(t, err)
		require.NoError(t, tree.CheckStructure())

		store.heal()
		_, err = tree.CommitChanges()
		require.NoError(t, err)
		assert.Zero(t, tree.Stats().DirtyNodes)

		assert.Equal(t, seq(1, 40), collectKeys(t, tree), "after %d writes", okWrites)
		require.NoError(t, tree.Verify(), "after %d writes", okWrites)

		require.NoError(t, tree.Unload())
		assert.Equal(t, seq(1, 40), collectKeys(t, tree), "after %d writes", okWrites)
		require.NoError(t, tree.Verify())
	}
}

func TestFailedRemoveCommitKeepsStoredTreeIntact(t *testing.T) {
	store := newFaultyStore()
	tree := newIntTree(t, store, testSettings(4, 0, 8))
	fill(t, tree, 1, 60)
	records := store.Stats().Records

	store.failWritesAfter(0)
	for i := 1; i <= 20; i++ {
		_, ok, err := tree.Remove(i)
		require.True(t, ok)
		require.ErrorIs(t, err, errInjected)
	}
	assert.Equal(t, records, store.Stats().Records, "no record is deleted before a commit succeeds")

	store.heal()
	require.NoError(t, tree.Unload())
	assert.Equal(t, seq(1, 60), collectKeys(t, tree))
	require.NoError(t, tree.Verify())

	for i := 1; i <= 20; i++ {
		_, ok, err := tree.Remove(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Less(t, store.Stats().Records, records)
	require.NoError(t, tree.Unload())
	assert.Equal(t, seq(21, 60), collectKeys(t, tree))
}

// =============================================================================
// Record Tests
// =============================================================================

type document struct {
	ID   storage.RID
	Body string
}

func (d *document) Identity() storage.RID { return d.ID }

func (d *document) Save(store storage.RecordStore) error {
	rid, err := store.Create([]byte(d.Body))
	if err != nil {
		return err
	}
	d.ID = rid
	return nil
}

func TestRecordValuesArePersistedFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	tree, err := New[string, *document](store, strings.Compare, Options{Logger: logging.NewNop()})
	require.NoError(t, err)

	doc := &document{Body: "hello"}
	_, _, err = tree.Put("greeting", doc)
	require.NoError(t, err)
	require.True(t, doc.ID.IsValid())
	assert.True(t, store.Exists(doc.ID))

	require.NoError(t, tree.Unload())
	got, ok, err := tree.Get("greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "hello", got.Body)
}
