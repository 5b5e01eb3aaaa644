package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CurrentVersion is the current file format version.
const CurrentVersion uint32 = 1

// fileHeaderLen is the number of meaningful bytes at the start of page 0.
const fileHeaderLen = 60

// Magic identifies a record store file.
var Magic = [4]byte{'M', 'V', 'R', 'B'}

// FileHeader is stored in page 0.
// Layout:
//   - Bytes 0-3:   Magic ("MVRB")
//   - Bytes 4-7:   Version (uint32)
//   - Bytes 8-11:  PageSize (uint32)
//   - Bytes 12-19: TotalPages (uint64)
//   - Bytes 20-27: FreeListHead (PageID)
//   - Bytes 28-35: RootRecord (RID)
//   - Bytes 36-51: StoreID (uuid)
//   - Bytes 52-59: Checksum (xxhash64 of bytes 0-51)
type FileHeader struct {
	Magic        [4]byte
	Version      uint32
	PageSize     uint32
	TotalPages   uint64
	FreeListHead PageID
	RootRecord   RID
	StoreID      uuid.UUID
	Checksum     uint64
}

// Errors for file header operations.
var (
	ErrInvalidMagic       = errors.New("invalid magic number: not a record store file")
	ErrUnsupportedVersion = errors.New("unsupported file format version")
	ErrHeaderChecksum     = errors.New("file header checksum mismatch")
)

// NewFileHeader creates a header for a fresh file.
func NewFileHeader(pageSize int) *FileHeader {
	return &FileHeader{
		Magic:      Magic,
		Version:    CurrentVersion,
		PageSize:   uint32(pageSize),
		TotalPages: 1,
		StoreID:    uuid.New(),
	}
}

// MarshalTo writes the header into buf and updates the checksum.
func (h *FileHeader) MarshalTo(buf []byte) error {
	if len(buf) < fileHeaderLen {
		return ErrInvalidPageSize
	}
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint64(buf[12:20], h.TotalPages)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.FreeListHead))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(h.RootRecord))
	copy(buf[36:52], h.StoreID[:])

	h.Checksum = xxhash.Sum64(buf[0:52])
	binary.LittleEndian.PutUint64(buf[52:60], h.Checksum)
	return nil
}

// Unmarshal reads and validates a header.
func (h *FileHeader) Unmarshal(buf []byte) error {
	if len(buf) < fileHeaderLen {
		return ErrInvalidPageSize
	}
	copy(h.Magic[:], buf[0:4])
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	if h.Version == 0 || h.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	h.PageSize = binary.LittleEndian.Uint32(buf[8:12])
	h.TotalPages = binary.LittleEndian.Uint64(buf[12:20])
	h.FreeListHead = PageID(binary.LittleEndian.Uint64(buf[20:28]))
	h.RootRecord = RID(binary.LittleEndian.Uint64(buf[28:36]))
	copy(h.StoreID[:], buf[36:52])
	h.Checksum = binary.LittleEndian.Uint64(buf[52:60])

	if h.Checksum != xxhash.Sum64(buf[0:52]) {
		return ErrHeaderChecksum
	}
	if !ValidPageSize(int(h.PageSize)) {
		return ErrInvalidPageSize
	}
	return nil
}
