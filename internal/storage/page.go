package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Page size limits in bytes.
const (
	PageSize    = 4096
	MinPageSize = 512
	MaxPageSize = 65536
)

// PageHeaderSize is the size of the page header in bytes.
const PageHeaderSize = 16

// PageType represents the type of a page in the file.
type PageType uint8

const (
	// PageTypeFree indicates a free/unused page.
	PageTypeFree PageType = iota
	// PageTypeRecord indicates the head page of a record.
	PageTypeRecord
	// PageTypeOverflow indicates a continuation page of a record.
	PageTypeOverflow
	// PageTypeFreeList indicates a page holding persisted free page ids.
	PageTypeFreeList
)

// String returns the string representation of a PageType.
func (pt PageType) String() string {
	switch pt {
	case PageTypeFree:
		return "Free"
	case PageTypeRecord:
		return "Record"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	default:
		return "Unknown"
	}
}

// PageID represents a unique identifier for a page.
type PageID uint64

// PageHeader represents the header of each page (first 16 bytes).
// Layout:
//   - Bytes 0-7:   PageID (uint64)
//   - Byte 8:      PageType (uint8)
//   - Byte 9:      Flags (uint8)
//   - Bytes 10-11: Used (uint16), bytes or entries in use
//   - Bytes 12-15: Checksum (uint32, truncated xxhash64)
type PageHeader struct {
	PageID   PageID
	PageType PageType
	Flags    uint8
	Used     uint16
	Checksum uint32
}

// Errors for page operations.
var (
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidChecksum = errors.New("page checksum mismatch")
	ErrInvalidPageType = errors.New("invalid page type")
)

// Page is a fixed-size block of the store file.
type Page struct {
	Header PageHeader
	Data   []byte // page content after the header
}

// NewPage creates a zeroed page of the given total size.
func NewPage(id PageID, pageType PageType, pageSize int) *Page {
	return &Page{
		Header: PageHeader{PageID: id, PageType: pageType},
		Data:   make([]byte, pageSize-PageHeaderSize),
	}
}

// ValidPageSize reports whether size can be used as a page size.
func ValidPageSize(size int) bool {
	return size >= MinPageSize && size <= MaxPageSize && size&(size-1) == 0
}

// Marshal serializes the page into buf, which must be exactly
// PageHeaderSize+len(Data) bytes, and stamps the checksum.
func (p *Page) Marshal(buf []byte) error {
	if len(buf) != PageHeaderSize+len(p.Data) {
		return ErrInvalidPageSize
	}
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.Header.PageID))
	buf[8] = byte(p.Header.PageType)
	buf[9] = p.Header.Flags
	binary.LittleEndian.PutUint16(buf[10:12], p.Header.Used)
	copy(buf[PageHeaderSize:], p.Data)

	p.Header.Checksum = pageChecksum(buf)
	binary.LittleEndian.PutUint32(buf[12:16], p.Header.Checksum)
	return nil
}

// Unmarshal reads a page from buf and verifies its checksum.
func (p *Page) Unmarshal(buf []byte) error {
	if len(buf) < MinPageSize {
		return ErrInvalidPageSize
	}
	p.Header.PageID = PageID(binary.LittleEndian.Uint64(buf[0:8]))
	p.Header.PageType = PageType(buf[8])
	p.Header.Flags = buf[9]
	p.Header.Used = binary.LittleEndian.Uint16(buf[10:12])
	p.Header.Checksum = binary.LittleEndian.Uint32(buf[12:16])

	if p.Header.Checksum != pageChecksum(buf) {
		return ErrInvalidChecksum
	}

	p.Data = make([]byte, len(buf)-PageHeaderSize)
	copy(p.Data, buf[PageHeaderSize:])
	return nil
}

// pageChecksum hashes everything but the checksum field itself.
func pageChecksum(buf []byte) uint32 {
	d := xxhash.New()
	_, _ = d.Write(buf[0:12])
	_, _ = d.Write(buf[PageHeaderSize:])
	return uint32(d.Sum64())
}
