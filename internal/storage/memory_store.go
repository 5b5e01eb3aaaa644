package storage

import (
	"sync"

	"github.com/pkg/errors"
)

// MemoryStats counts operations on a MemoryStore.
type MemoryStats struct {
	Creates int64
	Reads   int64
	Updates int64
	Deletes int64
	Records int
}

// Writes returns the number of creates and updates.
func (s MemoryStats) Writes() int64 {
	return s.Creates + s.Updates
}

// MemoryStore is a RecordStore kept entirely in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[RID][]byte
	nextRID RID
	root    RID
	stats   MemoryStats
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[RID][]byte),
		nextRID: 1,
	}
}

// Create stores a copy of data under a fresh RID.
func (m *MemoryStore) Create(data []byte) (RID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return InvalidRID, ErrStoreClosed
	}
	rid := m.nextRID
	m.nextRID++
	m.records[rid] = clone(data)
	m.stats.Creates++
	return rid, nil
}

// Read returns a copy of the record payload.
func (m *MemoryStore) Read(rid RID) ([]byte, error) {
	if !rid.IsValid() {
		return nil, ErrInvalidRID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	data, ok := m.records[rid]
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "record %s", rid)
	}
	m.stats.Reads++
	return clone(data), nil
}

// Update replaces the payload of an existing record.
func (m *MemoryStore) Update(rid RID, data []byte) error {
	if !rid.IsValid() {
		return ErrInvalidRID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.records[rid]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "record %s", rid)
	}
	m.records[rid] = clone(data)
	m.stats.Updates++
	return nil
}

// Delete removes the record.
func (m *MemoryStore) Delete(rid RID) error {
	if !rid.IsValid() {
		return ErrInvalidRID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.records[rid]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "record %s", rid)
	}
	delete(m.records, rid)
	m.stats.Deletes++
	return nil
}

// Exists reports whether rid is stored.
func (m *MemoryStore) Exists(rid RID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[rid]
	return ok
}

// Sync is a no-op.
func (m *MemoryStore) Sync() error {
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.closed = true
	return nil
}

// RootRecord returns the remembered root RID.
func (m *MemoryStore) RootRecord() RID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// SetRootRecord remembers rid.
func (m *MemoryStore) SetRootRecord(rid RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = rid
	return nil
}

// Stats returns operation counters.
func (m *MemoryStore) Stats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Records = len(m.records)
	return s
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
