// Package mvrb provides a persistent paged red-black tree: an ordered map
// whose nodes are pages of sorted key/value slots stored as records in a
// storage.RecordStore.
//
// # Overview
//
// The tree behaves like an in-memory ordered map while only a bounded part
// of it is resident. Nodes are loaded lazily the first time a link to them
// is followed and written back by CommitChanges. Each node link is either
// resolved (a pointer to the live node) or unresolved (only the RID of the
// node's record):
//
//	tree, err := mvrb.New[string, int](store, strings.Compare, mvrb.Options{})
//	prev, existed, err := tree.Put("alpha", 1)
//	v, ok, err := tree.Get("alpha")
//
// # Resident Set
//
// Three structures track the nodes in memory:
//
//   - the node cache maps a RID to the single live node for that record;
//   - the entry-point index maps the first key of selected nodes to the
//     node, and is used as the starting point of searches;
//   - the dirty set holds nodes whose memory state differs from storage.
//
// Optimize bounds the resident set. It keeps every n-th entry point plus the
// root and the node of the last search, and evicts the regions of the tree
// that hang off the dropped entry points. Dirty and never-written nodes are
// never evicted.
//
// # Low Memory
//
// SetOptimization raises a low-memory signal (a memory watchdog is the
// usual caller). Searches that observe the signal fail with ErrLowMemory;
// the tree catches that internally, runs a forced optimization, backs off
// and retries up to Settings.MaxRetries times.
//
// # Iteration
//
// Iterators are fail-fast but resumable. When the tree changed underneath
// an iterator it re-establishes its position from the last returned key
// instead of failing; ErrConcurrentModification is reported only when that
// is impossible.
//
// # Thread Safety
//
// A Tree is safe for concurrent use; every operation holds the tree lock.
// Mutations are expected to come from a single logical writer, with
// iterators observing its changes.
package mvrb
