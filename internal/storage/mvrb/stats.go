package mvrb

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// Stats is a snapshot of the tree state.
type Stats struct {
	ID               uuid.UUID
	HeaderRID        storage.RID
	RootRID          storage.RID
	Size             int
	ResidentNodes    int
	UnwrittenNodes   int
	DirtyNodes       int
	EntryPoints      int
	EntryPointBudget int
	PageCapacity     int
	Optimization     int
	Loads            uint64
	Evictions        uint64
	Optimizations    uint64
	NodesWritten     uint64
	LowMemoryRetries uint64
}

// Stats returns a snapshot of the tree state.
func (t *Tree[K, V]) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		ID:               t.header.id,
		HeaderRID:        t.headerRID,
		RootRID:          ridOf(t.root),
		Size:             int(t.header.size),
		ResidentNodes:    t.liveCount(),
		UnwrittenNodes:   t.transient,
		DirtyNodes:       len(t.dirty),
		EntryPoints:      t.entryPoints.len(),
		EntryPointBudget: t.settings.EntryPointBudget,
		PageCapacity:     t.settings.PageCapacity,
		Optimization:     t.Optimization(),
		Loads:            t.stats.loads,
		Evictions:        t.stats.evictions,
		Optimizations:    t.stats.optimizations,
		NodesWritten:     t.stats.nodesWritten,
		LowMemoryRetries: t.stats.lowMemoryRetries,
	}
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("tree %s: size=%d resident=%d dirty=%d entryPoints=%d/%d loads=%d evictions=%d",
		s.ID, s.Size, s.ResidentNodes, s.DirtyNodes, s.EntryPoints, s.EntryPointBudget, s.Loads, s.Evictions)
}

// String describes the tree.
func (t *Tree[K, V]) String() string {
	return t.Stats().String()
}
