package mvrb

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// Tree errors.
var (
	// ErrLowMemory is returned by searches while an optimization is pending.
	ErrLowMemory = errors.New("low memory: optimization pending")
	// ErrConcurrentModification means an iterator could not re-establish
	// its position after the tree changed.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrNoSuchElement is returned by Next past the last entry.
	ErrNoSuchElement = errors.New("no such element")
	// ErrIllegalState is returned by Remove and Update without a current entry.
	ErrIllegalState = errors.New("iterator has no current entry")
	// ErrCorrupted reports a structural inconsistency.
	ErrCorrupted = errors.New("tree structure corrupted")
	// ErrTreeDeleted is returned by every operation after Delete.
	ErrTreeDeleted = errors.New("tree has been deleted")
	// ErrNilStore and ErrNilCompare reject incomplete construction.
	ErrNilStore   = errors.New("record store is required")
	ErrNilCompare = errors.New("key comparator is required")
)

// StorageError wraps a failure of the record store.
type StorageError struct {
	Op  string
	RID storage.RID
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.RID, e.Err)
}

// Unwrap returns the store error.
func (e *StorageError) Unwrap() error { return e.Err }

// Cause returns the store error.
func (e *StorageError) Cause() error { return e.Err }

// CorruptionError describes an inconsistency found in a node.
type CorruptionError struct {
	RID    storage.RID
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("node %s: %s", e.RID, e.Reason)
}

// Is makes errors.Is(err, ErrCorrupted) match.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}

func corrupt(rid storage.RID, format string, args ...interface{}) error {
	return &CorruptionError{RID: rid, Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether the failed call can simply be repeated.
// Low-memory and iterator resynchronization failures are transient;
// missing elements, corruption and storage failures are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLowMemory) || errors.Is(err, ErrConcurrentModification)
}
