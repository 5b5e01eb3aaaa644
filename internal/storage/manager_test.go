package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FreeList Tests
// =============================================================================

func TestFreeListPushPop(t *testing.T) {
	fl := NewFreeList()
	fl.Push(10)
	fl.Push(20)
	fl.Push(30)
	fl.Push(20)

	assert.Equal(t, uint64(3), fl.Count())
	assert.True(t, fl.Contains(20))

	id, ok := fl.Pop()
	require.True(t, ok)
	assert.Equal(t, PageID(30), id)
	assert.False(t, fl.Contains(30))

	fl.Pop()
	fl.Pop()
	_, ok = fl.Pop()
	assert.False(t, ok)
}

func TestFreeListPagesRoundTrip(t *testing.T) {
	const pageSize = MinPageSize
	per := entriesPerPage(pageSize)

	fl := NewFreeList()
	for i := 1; i <= per*2+5; i++ {
		fl.Push(PageID(i))
	}

	pages := fl.encodePages(pageSize)
	require.Len(t, pages, 3)

	byID := make(map[PageID]*Page)
	for _, p := range pages {
		byID[p.Header.PageID] = p
	}

	loaded := NewFreeList()
	for id := pages[0].Header.PageID; id != 0; {
		next, err := loaded.decodePage(byID[id])
		require.NoError(t, err)
		id = next
	}
	assert.ElementsMatch(t, fl.IDs(), loaded.IDs())
}

func TestFreeListDecodeRejectsOtherPages(t *testing.T) {
	fl := NewFreeList()
	_, err := fl.decodePage(NewPage(3, PageTypeRecord, PageSize))
	assert.ErrorIs(t, err, ErrInvalidPageType)
}

// =============================================================================
// PageManager Tests
// =============================================================================

func createTestPageManager(t *testing.T, opts Options) (*PageManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mvrb")
	pm, err := OpenPageManager(path, opts)
	require.NoError(t, err)
	return pm, path
}

func TestOpenPageManagerNew(t *testing.T) {
	pm, path := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	stats := pm.Stats()
	assert.Equal(t, uint64(DefaultInitialPages), stats.TotalPages)
	assert.Equal(t, uint64(DefaultInitialPages-1), stats.FreePages)
	assert.Equal(t, uint64(0), stats.UsedPages)
	assert.Equal(t, PageSize, pm.PageSize())
	assert.Equal(t, path, pm.Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultInitialPages*PageSize), info.Size())
}

func TestOpenPageManagerNoCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mvrb")
	opts := DefaultOptions()
	opts.CreateIfMissing = false

	_, err := OpenPageManager(path, opts)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenPageManagerInvalidPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mvrb")
	_, err := OpenPageManager(path, DefaultOptions().WithPageSize(1000))
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestOpenPageManagerRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.mvrb")
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize), 0644))

	_, err := OpenPageManager(path, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestPageManagerAllocateAscending(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	for want := PageID(1); want < 5; want++ {
		id, err := pm.AllocatePage(PageTypeRecord)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestPageManagerFreeAndReuse(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	id, err := pm.AllocatePage(PageTypeRecord)
	require.NoError(t, err)
	require.NoError(t, pm.FreePage(id))
	assert.True(t, pm.IsFree(id))

	page, err := pm.ReadPage(id)
	require.NoError(t, err)
	assert.Equal(t, PageTypeFree, page.Header.PageType)

	again, err := pm.AllocatePage(PageTypeOverflow)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestPageManagerFreePageErrors(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	assert.ErrorIs(t, pm.FreePage(0), ErrCannotFreeHeader)
	assert.ErrorIs(t, pm.FreePage(10000), ErrPageOutOfRange)
	assert.ErrorIs(t, pm.FreePage(3), ErrPageAlreadyFree)
}

func TestPageManagerReadWritePage(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	id, err := pm.AllocatePage(PageTypeRecord)
	require.NoError(t, err)

	page := NewPage(id, PageTypeRecord, pm.PageSize())
	copy(page.Data, []byte("persisted bytes"))
	page.Header.Used = 15
	require.NoError(t, pm.WritePage(page))

	got, err := pm.ReadPage(id)
	require.NoError(t, err)
	assert.Equal(t, uint16(15), got.Header.Used)
	assert.Equal(t, []byte("persisted bytes"), got.Data[:15])
}

func TestPageManagerReadPageErrors(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	_, err := pm.ReadPage(0)
	assert.ErrorIs(t, err, ErrInvalidPageID)
	_, err = pm.ReadPage(1 << 20)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestPageManagerWritePageErrors(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	assert.ErrorIs(t, pm.WritePage(NewPage(0, PageTypeRecord, PageSize)), ErrInvalidPageID)
	assert.ErrorIs(t, pm.WritePage(NewPage(1<<20, PageTypeRecord, PageSize)), ErrPageOutOfRange)
	assert.ErrorIs(t, pm.WritePage(NewPage(1, PageTypeRecord, MinPageSize)), ErrInvalidPageSize)
}

func TestPageManagerFileGrowth(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialPages = 2
	pm, _ := createTestPageManager(t, opts)
	defer pm.Close()

	for i := 0; i < 20; i++ {
		_, err := pm.AllocatePage(PageTypeRecord)
		require.NoError(t, err)
	}

	stats := pm.Stats()
	assert.Equal(t, uint64(20), stats.UsedPages)
	assert.GreaterOrEqual(t, stats.TotalPages, uint64(21))
	assert.Zero(t, (stats.TotalPages-2)%MinGrowthPages)
}

func TestPageManagerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.mvrb")

	pm, err := OpenPageManager(path, DefaultOptions())
	require.NoError(t, err)

	var kept, freed []PageID
	for i := 0; i < 30; i++ {
		id, err := pm.AllocatePage(PageTypeRecord)
		require.NoError(t, err)
		if i%3 == 0 {
			freed = append(freed, id)
		} else {
			kept = append(kept, id)
		}
	}
	for _, id := range freed {
		require.NoError(t, pm.FreePage(id))
	}
	require.NoError(t, pm.SetRootRecord(RID(kept[0])))
	storeID := pm.StoreID()
	before := pm.Stats()
	require.NoError(t, pm.Close())

	pm, err = OpenPageManager(path, DefaultOptions())
	require.NoError(t, err)
	defer pm.Close()

	after := pm.Stats()
	assert.Equal(t, before.TotalPages, after.TotalPages)
	assert.Equal(t, before.FreePages, after.FreePages)
	assert.Equal(t, RID(kept[0]), pm.RootRecord())
	assert.Equal(t, storeID, pm.StoreID())
	for _, id := range freed {
		assert.True(t, pm.IsFree(id), "page %d should be free after reopen", id)
	}
	for _, id := range kept {
		assert.False(t, pm.IsFree(id), "page %d should stay allocated", id)
	}
}

func TestPageManagerReopenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.mvrb")

	for round := 0; round < 3; round++ {
		pm, err := OpenPageManager(path, DefaultOptions())
		require.NoError(t, err)
		id, err := pm.AllocatePage(PageTypeRecord)
		require.NoError(t, err)
		assert.Equal(t, PageID(round+1), id)
		require.NoError(t, pm.Close())
	}
}

func TestPageManagerReadOnly(t *testing.T) {
	pm, path := createTestPageManager(t, DefaultOptions())
	id, err := pm.AllocatePage(PageTypeRecord)
	require.NoError(t, err)
	require.NoError(t, pm.Close())

	ro, err := OpenPageManager(path, DefaultOptions().WithReadOnly(true))
	require.NoError(t, err)
	defer ro.Close()

	assert.True(t, ro.IsReadOnly())
	_, err = ro.ReadPage(id)
	assert.NoError(t, err)
	_, err = ro.AllocatePage(PageTypeRecord)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.FreePage(id), ErrReadOnly)
	assert.ErrorIs(t, ro.SetRootRecord(1), ErrReadOnly)
}

func TestPageManagerClosed(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Close(), ErrFileClosed)
	_, err := pm.AllocatePage(PageTypeRecord)
	assert.ErrorIs(t, err, ErrFileClosed)
	_, err = pm.ReadPage(1)
	assert.ErrorIs(t, err, ErrFileClosed)
	assert.ErrorIs(t, pm.Sync(), ErrFileClosed)
}

func TestPageManagerConcurrentAccess(t *testing.T) {
	pm, _ := createTestPageManager(t, DefaultOptions())
	defer pm.Close()

	var wg sync.WaitGroup
	ids := make(chan PageID, 100)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id, err := pm.AllocatePage(PageTypeRecord)
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[PageID]bool)
	for id := range ids {
		assert.False(t, seen[id], "page %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}
