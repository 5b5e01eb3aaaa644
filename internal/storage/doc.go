// Package storage provides the record storage layer used by the persistent
// index.
//
// # Overview
//
// Every persisted object is a record: an opaque byte payload identified by a
// stable record identifier (RID). The RecordStore interface is the only
// contract the index depends on:
//
//	type RecordStore interface {
//	    Create(data []byte) (RID, error)
//	    Read(rid RID) ([]byte, error)
//	    Update(rid RID, data []byte) error
//	    Delete(rid RID) error
//	    Sync() error
//	    Close() error
//	}
//
// Three implementations are provided:
//
//   - FileStore keeps records in a single paged file managed by PageManager.
//     A record occupies a head page followed by a chain of overflow pages,
//     and its RID is the head page id. Payloads are checksummed with xxhash
//     and optionally compressed with snappy.
//   - MemoryStore keeps records in a map. It is used by tests and by
//     short-lived trees that never touch disk.
//   - CachedStore wraps any RecordStore with a ristretto read cache.
//
// # File Layout
//
// Page 0 holds the FileHeader (magic "MVRB", version, page size, page count,
// free list head, root record, store id, checksum). All other pages start
// with a 16-byte PageHeader. Free pages are tracked in memory and persisted
// on Close into free pages themselves, so the free list never consumes
// space that could hold records.
//
// # Thread Safety
//
// All stores are safe for concurrent use. Writers are serialized by the
// store; the index above never assumes more than that.
package storage
