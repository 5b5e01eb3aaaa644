package storage

import (
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Default options for PageManager.
const (
	DefaultInitialPages = 16
	MinGrowthPages      = 8
)

// Errors for PageManager operations.
var (
	ErrInvalidPageID    = errors.New("invalid page ID")
	ErrPageOutOfRange   = errors.New("page ID out of range")
	ErrPageAlreadyFree  = errors.New("page is already free")
	ErrCannotFreeHeader = errors.New("cannot free header page")
	ErrFileClosed       = errors.New("page manager is closed")
	ErrFileCorrupted    = errors.New("file is corrupted")
)

// PageManager handles page allocation, deallocation, and I/O on a single
// file of fixed-size pages.
type PageManager struct {
	file        *os.File
	header      *FileHeader
	pageSize    int
	totalPages  uint64
	freeList    *FreeList
	mu          sync.RWMutex
	path        string
	readOnly    bool
	syncOnWrite bool
	closed      bool
}

// OpenPageManager opens or creates a page file at path.
func OpenPageManager(path string, opts Options) (*PageManager, error) {
	if opts.PageSize == 0 {
		opts.PageSize = PageSize
	}
	if opts.InitialPages <= 0 {
		opts.InitialPages = DefaultInitialPages
	}
	if !ValidPageSize(opts.PageSize) {
		return nil, errors.Wrapf(ErrInvalidPageSize, "page size %d", opts.PageSize)
	}

	pm := &PageManager{
		pageSize:    opts.PageSize,
		freeList:    NewFreeList(),
		path:        path,
		readOnly:    opts.ReadOnly,
		syncOnWrite: opts.SyncOnWrite,
	}

	_, err := os.Stat(path)
	exists := err == nil
	if !exists && (!opts.CreateIfMissing || opts.ReadOnly) {
		return nil, errors.Wrap(os.ErrNotExist, path)
	}

	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	} else if !exists {
		flags |= os.O_CREATE
	}

	pm.file, err = os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open page file")
	}

	if exists {
		err = pm.loadExisting()
	} else {
		err = pm.initializeNew(opts.InitialPages)
	}
	if err != nil {
		_ = pm.file.Close()
		if !exists {
			_ = os.Remove(path)
		}
		return nil, err
	}

	return pm, nil
}

// loadExisting reads the header and the persisted free list.
func (pm *PageManager) loadExisting() error {
	buf := make([]byte, MinPageSize)
	if _, err := pm.file.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "read file header")
	}

	pm.header = &FileHeader{}
	if err := pm.header.Unmarshal(buf); err != nil {
		return errors.Wrap(err, "invalid file header")
	}

	pm.pageSize = int(pm.header.PageSize)
	pm.totalPages = pm.header.TotalPages

	hops := uint64(0)
	for id := pm.header.FreeListHead; id != 0; hops++ {
		if hops >= pm.totalPages {
			return errors.Wrap(ErrFileCorrupted, "free list chain loops")
		}
		page, err := pm.readPageLocked(id)
		if err != nil {
			return errors.Wrap(err, "load free list")
		}
		if id, err = pm.freeList.decodePage(page); err != nil {
			return errors.Wrap(err, "load free list")
		}
	}

	// The pages that held the list are free again and may be reused right
	// away, so the on-disk head must not outlive this load.
	if pm.header.FreeListHead != 0 && !pm.readOnly {
		pm.header.FreeListHead = 0
		return pm.saveHeaderLocked()
	}
	return nil
}

// initializeNew writes the header of a new file and frees the initial pages.
func (pm *PageManager) initializeNew(initialPages int) error {
	if initialPages < 2 {
		initialPages = 2
	}

	pm.header = NewFileHeader(pm.pageSize)
	pm.totalPages = uint64(initialPages)

	if err := pm.file.Truncate(int64(initialPages) * int64(pm.pageSize)); err != nil {
		return errors.Wrap(err, "extend file")
	}
	// Highest id first so Pop hands out pages in ascending order.
	for i := initialPages - 1; i >= 1; i-- {
		pm.freeList.Push(PageID(i))
	}
	if err := pm.saveHeaderLocked(); err != nil {
		return err
	}
	return errors.Wrap(pm.file.Sync(), "sync file")
}

// Close persists the free list and header and closes the file.
func (pm *PageManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrFileClosed
	}
	pm.closed = true

	var err error
	if !pm.readOnly {
		err = multierr.Append(err, pm.saveFreeListLocked())
		err = multierr.Append(err, pm.saveHeaderLocked())
		err = multierr.Append(err, pm.file.Sync())
	}
	return multierr.Append(err, pm.file.Close())
}

// saveFreeListLocked writes the free list into free pages.
func (pm *PageManager) saveFreeListLocked() error {
	pages := pm.freeList.encodePages(pm.pageSize)
	for _, page := range pages {
		if err := pm.writePageLocked(page); err != nil {
			return errors.Wrap(err, "save free list")
		}
	}
	pm.header.FreeListHead = 0
	if len(pages) > 0 {
		pm.header.FreeListHead = pages[0].Header.PageID
	}
	return nil
}

// saveHeaderLocked writes page 0.
func (pm *PageManager) saveHeaderLocked() error {
	pm.header.TotalPages = pm.totalPages
	buf := make([]byte, pm.pageSize)
	if err := pm.header.MarshalTo(buf); err != nil {
		return err
	}
	_, err := pm.file.WriteAt(buf, 0)
	return errors.Wrap(err, "write file header")
}

// AllocatePage reserves a page and initializes it with the given type.
func (pm *PageManager) AllocatePage(pageType PageType) (PageID, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return 0, ErrFileClosed
	}
	if pm.readOnly {
		return 0, ErrReadOnly
	}

	id, ok := pm.freeList.Pop()
	if !ok {
		if err := pm.growLocked(); err != nil {
			return 0, err
		}
		id, _ = pm.freeList.Pop()
	}

	if err := pm.writePageLocked(NewPage(id, pageType, pm.pageSize)); err != nil {
		pm.freeList.Push(id)
		return 0, err
	}
	return id, nil
}

// growLocked extends the file by MinGrowthPages and frees the new pages.
func (pm *PageManager) growLocked() error {
	newTotal := pm.totalPages + MinGrowthPages
	if err := pm.file.Truncate(int64(newTotal) * int64(pm.pageSize)); err != nil {
		return errors.Wrap(err, "grow file")
	}
	for i := newTotal - 1; i >= pm.totalPages; i-- {
		pm.freeList.Push(PageID(i))
	}
	pm.totalPages = newTotal
	return nil
}

// FreePage returns a page to the free list.
func (pm *PageManager) FreePage(id PageID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrFileClosed
	}
	if pm.readOnly {
		return ErrReadOnly
	}
	if id == 0 {
		return ErrCannotFreeHeader
	}
	if uint64(id) >= pm.totalPages {
		return ErrPageOutOfRange
	}
	if pm.freeList.Contains(id) {
		return ErrPageAlreadyFree
	}

	if err := pm.writePageLocked(NewPage(id, PageTypeFree, pm.pageSize)); err != nil {
		return err
	}
	pm.freeList.Push(id)
	return nil
}

// IsFree reports whether the page is on the free list.
func (pm *PageManager) IsFree(id PageID) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.freeList.Contains(id)
}

// ReadPage reads a page from disk.
func (pm *PageManager) ReadPage(id PageID) (*Page, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.closed {
		return nil, ErrFileClosed
	}
	return pm.readPageLocked(id)
}

func (pm *PageManager) readPageLocked(id PageID) (*Page, error) {
	if id == 0 {
		return nil, ErrInvalidPageID
	}
	if uint64(id) >= pm.totalPages {
		return nil, ErrPageOutOfRange
	}

	buf := make([]byte, pm.pageSize)
	n, err := pm.file.ReadAt(buf, int64(id)*int64(pm.pageSize))
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read page %d", id)
	}
	if n < pm.pageSize {
		return nil, errors.Wrapf(ErrFileCorrupted, "short read of page %d: %d bytes", id, n)
	}

	page := &Page{}
	if err := page.Unmarshal(buf); err != nil {
		return nil, errors.Wrapf(err, "page %d", id)
	}
	if page.Header.PageID != id {
		return nil, errors.Wrapf(ErrFileCorrupted, "page %d claims id %d", id, page.Header.PageID)
	}
	return page, nil
}

// WritePage writes a page to disk.
func (pm *PageManager) WritePage(page *Page) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrFileClosed
	}
	if pm.readOnly {
		return ErrReadOnly
	}
	return pm.writePageLocked(page)
}

func (pm *PageManager) writePageLocked(page *Page) error {
	id := page.Header.PageID
	if id == 0 {
		return ErrInvalidPageID
	}
	if uint64(id) >= pm.totalPages {
		return ErrPageOutOfRange
	}
	if PageHeaderSize+len(page.Data) != pm.pageSize {
		return ErrInvalidPageSize
	}

	buf := make([]byte, pm.pageSize)
	if err := page.Marshal(buf); err != nil {
		return err
	}
	if _, err := pm.file.WriteAt(buf, int64(id)*int64(pm.pageSize)); err != nil {
		return errors.Wrapf(err, "write page %d", id)
	}
	if pm.syncOnWrite {
		return errors.Wrap(pm.file.Sync(), "sync after write")
	}
	return nil
}

// Sync writes the header and flushes the file.
func (pm *PageManager) Sync() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrFileClosed
	}
	if pm.readOnly {
		return nil
	}
	if err := pm.saveHeaderLocked(); err != nil {
		return err
	}
	return errors.Wrap(pm.file.Sync(), "sync file")
}

// RootRecord returns the RID remembered in the file header.
func (pm *PageManager) RootRecord() RID {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.header.RootRecord
}

// SetRootRecord stores rid in the file header.
func (pm *PageManager) SetRootRecord(rid RID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrFileClosed
	}
	if pm.readOnly {
		return ErrReadOnly
	}
	pm.header.RootRecord = rid
	return pm.saveHeaderLocked()
}

// StoreID returns the identity assigned when the file was created.
func (pm *PageManager) StoreID() uuid.UUID {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.header.StoreID
}

// PageSize returns the page size in bytes.
func (pm *PageManager) PageSize() int {
	return pm.pageSize
}

// Path returns the file path.
func (pm *PageManager) Path() string {
	return pm.path
}

// IsReadOnly returns true if the page manager is in read-only mode.
func (pm *PageManager) IsReadOnly() bool {
	return pm.readOnly
}

// Stats describes page usage.
type Stats struct {
	TotalPages    uint64
	FreePages     uint64
	UsedPages     uint64
	PageSize      int
	FileSizeBytes int64
}

// Stats returns current statistics.
func (pm *PageManager) Stats() Stats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	free := pm.freeList.Count()
	return Stats{
		TotalPages:    pm.totalPages,
		FreePages:     free,
		UsedPages:     pm.totalPages - free - 1,
		PageSize:      pm.pageSize,
		FileSizeBytes: int64(pm.totalPages) * int64(pm.pageSize),
	}
}
