package storage

import "encoding/binary"

// freeListEntrySize is the size of one persisted free page id.
const freeListEntrySize = 8

// FreeList tracks reusable pages. It is not synchronized; PageManager
// guards it with its own lock.
//
// On disk the list is a chain of PageTypeFreeList pages:
//   - Bytes 0-7 of Data: next free list page (0 if none)
//   - Bytes 8-...:       free page ids, Header.Used entries
type FreeList struct {
	pages  []PageID
	member map[PageID]struct{}
}

// NewFreeList creates an empty FreeList.
func NewFreeList() *FreeList {
	return &FreeList{member: make(map[PageID]struct{})}
}

// Count returns the number of free pages.
func (fl *FreeList) Count() uint64 {
	return uint64(len(fl.pages))
}

// Contains reports whether id is on the list.
func (fl *FreeList) Contains(id PageID) bool {
	_, ok := fl.member[id]
	return ok
}

// Push adds a page id to the list.
func (fl *FreeList) Push(id PageID) {
	if fl.Contains(id) {
		return
	}
	fl.pages = append(fl.pages, id)
	fl.member[id] = struct{}{}
}

// Pop removes the most recently freed page (LIFO for locality).
func (fl *FreeList) Pop() (PageID, bool) {
	if len(fl.pages) == 0 {
		return 0, false
	}
	last := len(fl.pages) - 1
	id := fl.pages[last]
	fl.pages = fl.pages[:last]
	delete(fl.member, id)
	return id, true
}

// IDs returns a copy of the free page ids.
func (fl *FreeList) IDs() []PageID {
	out := make([]PageID, len(fl.pages))
	copy(out, fl.pages)
	return out
}

// entriesPerPage returns how many ids fit in one free list page.
func entriesPerPage(pageSize int) int {
	return (pageSize - PageHeaderSize - 8) / freeListEntrySize
}

// encodePages lays the list out over pages taken from the list itself.
// The hosting pages stay free: their content only matters until the list
// is loaded again.
func (fl *FreeList) encodePages(pageSize int) []*Page {
	if len(fl.pages) == 0 {
		return nil
	}
	per := entriesPerPage(pageSize)
	n := (len(fl.pages) + per - 1) / per

	out := make([]*Page, n)
	for i := 0; i < n; i++ {
		page := NewPage(fl.pages[i], PageTypeFreeList, pageSize)
		var next PageID
		if i+1 < n {
			next = fl.pages[i+1]
		}
		binary.LittleEndian.PutUint64(page.Data[0:8], uint64(next))

		chunk := fl.pages[i*per:]
		if len(chunk) > per {
			chunk = chunk[:per]
		}
		for j, id := range chunk {
			off := 8 + j*freeListEntrySize
			binary.LittleEndian.PutUint64(page.Data[off:off+freeListEntrySize], uint64(id))
		}
		page.Header.Used = uint16(len(chunk))
		out[i] = page
	}
	return out
}

// decodePage appends the ids held by one free list page and returns the
// next page in the chain.
func (fl *FreeList) decodePage(page *Page) (PageID, error) {
	if page.Header.PageType != PageTypeFreeList {
		return 0, ErrInvalidPageType
	}
	n := int(page.Header.Used)
	if 8+n*freeListEntrySize > len(page.Data) {
		return 0, ErrFileCorrupted
	}
	for j := 0; j < n; j++ {
		off := 8 + j*freeListEntrySize
		if id := PageID(binary.LittleEndian.Uint64(page.Data[off : off+freeListEntrySize])); id != 0 {
			fl.Push(id)
		}
	}
	return PageID(binary.LittleEndian.Uint64(page.Data[0:8])), nil
}
