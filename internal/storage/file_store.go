package storage

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record page layout.
//
// Head page data:
//   - Bytes 0-7:   next overflow page (0 if none)
//   - Bytes 8-11:  stored payload length (uint32)
//   - Byte 12:     record flags
//   - Bytes 13-20: xxhash64 of the stored payload
//   - Bytes 21-..: first payload chunk (Header.Used bytes)
//
// Overflow page data:
//   - Bytes 0-7:   next overflow page (0 if none)
//   - Bytes 8-..:  payload chunk (Header.Used bytes)
const (
	recordHeadOverhead     = 21
	recordOverflowOverhead = 8

	recordFlagSnappy uint8 = 1 << 0
)

// FileStore is a RecordStore backed by a PageManager.
type FileStore struct {
	pm          *PageManager
	compression Compression
	mu          sync.Mutex
}

// OpenFileStore opens or creates the store file at path.
func OpenFileStore(path string, opts Options) (*FileStore, error) {
	pm, err := OpenPageManager(path, opts)
	if err != nil {
		return nil, err
	}
	return &FileStore{pm: pm, compression: opts.Compression}, nil
}

// Create stores data as a new record.
func (s *FileStore) Create(data []byte) (RID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.pm.AllocatePage(PageTypeRecord)
	if err != nil {
		return InvalidRID, errors.Wrap(err, "allocate record")
	}

	stored, flags := s.encode(data)
	if _, err := s.writeChain(head, stored, flags); err != nil {
		_ = s.pm.FreePage(head)
		return InvalidRID, err
	}
	return RID(head), nil
}

// Read returns the payload of the record.
func (s *FileStore) Read(rid RID) ([]byte, error) {
	if !rid.IsValid() {
		return nil, ErrInvalidRID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.readChain(rid)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(chain.payload) != chain.sum {
		return nil, errors.Wrapf(ErrChecksumMismatch, "record %s", rid)
	}
	if chain.flags&recordFlagSnappy != 0 {
		out, err := snappy.Decode(nil, chain.payload)
		return out, errors.Wrapf(err, "decompress record %s", rid)
	}
	return chain.payload, nil
}

// Update rewrites the record in place. The head page, and so the RID, is
// kept; the overflow chain is rebuilt.
func (s *FileStore) Update(rid RID, data []byte) error {
	if !rid.IsValid() {
		return ErrInvalidRID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.readChain(rid)
	if err != nil {
		return err
	}

	stored, flags := s.encode(data)
	if _, err := s.writeChain(PageID(rid), stored, flags); err != nil {
		return err
	}
	return s.freePages(old.overflow)
}

// Delete frees every page of the record.
func (s *FileStore) Delete(rid RID) error {
	if !rid.IsValid() {
		return ErrInvalidRID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.readChain(rid)
	if err != nil {
		return err
	}
	if err := s.freePages(chain.overflow); err != nil {
		return err
	}
	return errors.Wrapf(s.pm.FreePage(PageID(rid)), "delete record %s", rid)
}

// Sync flushes the file.
func (s *FileStore) Sync() error {
	return s.pm.Sync()
}

// Close closes the underlying page file.
func (s *FileStore) Close() error {
	return s.pm.Close()
}

// RootRecord returns the RID remembered in the file header.
func (s *FileStore) RootRecord() RID {
	return s.pm.RootRecord()
}

// SetRootRecord remembers rid in the file header.
func (s *FileStore) SetRootRecord(rid RID) error {
	return s.pm.SetRootRecord(rid)
}

// ID returns the store identity.
func (s *FileStore) ID() uuid.UUID {
	return s.pm.StoreID()
}

// Path returns the file path.
func (s *FileStore) Path() string {
	return s.pm.Path()
}

// Stats returns page usage of the file.
func (s *FileStore) Stats() Stats {
	return s.pm.Stats()
}

func (s *FileStore) encode(data []byte) ([]byte, uint8) {
	if s.compression == CompressionSnappy && len(data) > 0 {
		if c := snappy.Encode(nil, data); len(c) < len(data) {
			return c, recordFlagSnappy
		}
	}
	return data, 0
}

// writeChain writes stored under the head page, overflow pages first so the
// head never points at pages that were not written yet.
func (s *FileStore) writeChain(head PageID, stored []byte, flags uint8) ([]PageID, error) {
	pageSize := s.pm.PageSize()
	dataSize := pageSize - PageHeaderSize
	first := dataSize - recordHeadOverhead
	per := dataSize - recordOverflowOverhead

	if uint64(len(stored)) > uint64(^uint32(0)) {
		return nil, ErrRecordTooLarge
	}

	headChunk := stored[:min(first, len(stored))]
	rest := stored[len(headChunk):]

	var overflow []PageID
	for off := 0; off < len(rest); off += per {
		id, err := s.pm.AllocatePage(PageTypeOverflow)
		if err != nil {
			_ = s.freePages(overflow)
			return nil, errors.Wrap(err, "allocate overflow page")
		}
		overflow = append(overflow, id)
	}

	for i := len(overflow) - 1; i >= 0; i-- {
		page := NewPage(overflow[i], PageTypeOverflow, pageSize)
		var next PageID
		if i+1 < len(overflow) {
			next = overflow[i+1]
		}
		chunk := rest[i*per : min((i+1)*per, len(rest))]
		binary.LittleEndian.PutUint64(page.Data[0:8], uint64(next))
		copy(page.Data[recordOverflowOverhead:], chunk)
		page.Header.Used = uint16(len(chunk))
		if err := s.pm.WritePage(page); err != nil {
			_ = s.freePages(overflow)
			return nil, err
		}
	}

	page := NewPage(head, PageTypeRecord, pageSize)
	var next PageID
	if len(overflow) > 0 {
		next = overflow[0]
	}
	binary.LittleEndian.PutUint64(page.Data[0:8], uint64(next))
	binary.LittleEndian.PutUint32(page.Data[8:12], uint32(len(stored)))
	page.Data[12] = flags
	binary.LittleEndian.PutUint64(page.Data[13:21], xxhash.Sum64(stored))
	copy(page.Data[recordHeadOverhead:], headChunk)
	page.Header.Used = uint16(len(headChunk))
	if err := s.pm.WritePage(page); err != nil {
		_ = s.freePages(overflow)
		return nil, err
	}
	return overflow, nil
}

type recordChain struct {
	overflow []PageID
	payload  []byte
	flags    uint8
	sum      uint64
}

func (s *FileStore) readChain(rid RID) (*recordChain, error) {
	page, err := s.pm.ReadPage(PageID(rid))
	if err != nil {
		if errors.Is(err, ErrPageOutOfRange) {
			return nil, errors.Wrapf(ErrRecordNotFound, "record %s", rid)
		}
		return nil, err
	}
	if page.Header.PageType != PageTypeRecord {
		return nil, errors.Wrapf(ErrRecordNotFound, "record %s", rid)
	}

	length := binary.LittleEndian.Uint32(page.Data[8:12])
	chain := &recordChain{
		payload: make([]byte, 0, length),
		flags:   page.Data[12],
		sum:     binary.LittleEndian.Uint64(page.Data[13:21]),
	}
	used := int(page.Header.Used)
	if recordHeadOverhead+used > len(page.Data) {
		return nil, errors.Wrapf(ErrFileCorrupted, "record %s head", rid)
	}
	chain.payload = append(chain.payload, page.Data[recordHeadOverhead:recordHeadOverhead+used]...)

	next := PageID(binary.LittleEndian.Uint64(page.Data[0:8]))
	for next != 0 {
		if uint32(len(chain.payload)) >= length {
			return nil, errors.Wrapf(ErrFileCorrupted, "record %s chain longer than payload", rid)
		}
		p, err := s.pm.ReadPage(next)
		if err != nil {
			return nil, errors.Wrapf(err, "record %s overflow", rid)
		}
		if p.Header.PageType != PageTypeOverflow {
			return nil, errors.Wrapf(ErrFileCorrupted, "record %s overflow page %d has type %s", rid, next, p.Header.PageType)
		}
		used := int(p.Header.Used)
		if used == 0 || recordOverflowOverhead+used > len(p.Data) {
			return nil, errors.Wrapf(ErrFileCorrupted, "record %s overflow page %d", rid, next)
		}
		chain.overflow = append(chain.overflow, next)
		chain.payload = append(chain.payload, p.Data[recordOverflowOverhead:recordOverflowOverhead+used]...)
		next = PageID(binary.LittleEndian.Uint64(p.Data[0:8]))
	}

	if uint32(len(chain.payload)) != length {
		return nil, errors.Wrapf(ErrFileCorrupted, "record %s has %d of %d bytes", rid, len(chain.payload), length)
	}
	return chain, nil
}

func (s *FileStore) freePages(ids []PageID) error {
	for _, id := range ids {
		if err := s.pm.FreePage(id); err != nil {
			return errors.Wrapf(err, "free page %d", id)
		}
	}
	return nil
}
