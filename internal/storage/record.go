package storage

import (
	"strconv"

	"github.com/pkg/errors"
)

// RID identifies a durable record. The zero value is the unassigned RID.
type RID uint64

// InvalidRID is the RID of a record that has not been written yet.
const InvalidRID RID = 0

// IsValid reports whether the RID refers to a stored record.
func (r RID) IsValid() bool {
	return r != InvalidRID
}

// IsNew reports whether the RID is still unassigned.
func (r RID) IsNew() bool {
	return r == InvalidRID
}

// String returns "#<id>" or "#new".
func (r RID) String() string {
	if r.IsNew() {
		return "#new"
	}
	return "#" + strconv.FormatUint(uint64(r), 10)
}

// RecordStore is the storage collaborator of the index: durable byte
// records addressed by RID.
type RecordStore interface {
	// Create stores a new record and returns its RID.
	Create(data []byte) (RID, error)
	// Read returns the payload of the record.
	Read(rid RID) ([]byte, error)
	// Update replaces the payload of an existing record.
	Update(rid RID, data []byte) error
	// Delete removes the record. Its RID may be reused later.
	Delete(rid RID) error
	// Sync flushes pending writes to durable storage.
	Sync() error
	// Close releases the store.
	Close() error
}

// Record store errors.
var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidRID       = errors.New("invalid record id")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
	ErrStoreClosed      = errors.New("record store is closed")
	ErrReadOnly         = errors.New("record store is read-only")
	ErrRecordTooLarge   = errors.New("record too large")
)
