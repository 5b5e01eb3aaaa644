package mvrb

import "github.com/pkg/errors"

// Iterator walks the entries of a tree in ascending key order.
//
// The iterator remembers the node and slot of its position plus the last
// returned key. When the tree was modified since the iterator last looked
// (including evictions by an optimization), it re-establishes the position
// from that key, so iteration continues with the entry that follows it.
// A failed re-establishment is reported as ErrConcurrentModification.
type Iterator[K, V any] struct {
	tree  *Tree[K, V]
	node  *node[K, V]
	index int // slot of the last returned entry; -1 before the node's first

	// anchor is the key the position is derived from: the last returned
	// key, or the lower bound the iterator was created with.
	anchor          K
	anchored        bool
	anchorInclusive bool

	current     bool
	expectedMod uint64
	err         error
}

// Iterator returns an iterator positioned before the smallest entry.
func (t *Tree[K, V]) Iterator() (*Iterator[K, V], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := &Iterator[K, V]{tree: t}
	if err := it.start(); err != nil {
		return nil, err
	}
	return it, nil
}

// IteratorFrom returns an iterator positioned before the least key >= from.
func (t *Tree[K, V]) IteratorFrom(from K) (*Iterator[K, V], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := &Iterator[K, V]{tree: t, anchor: from, anchored: true, anchorInclusive: true}
	if err := it.start(); err != nil {
		return nil, err
	}
	return it, nil
}

// Ascend calls fn for every entry in ascending order until fn returns false.
func (t *Tree[K, V]) Ascend(fn func(key K, value V) bool) error {
	it, err := t.Iterator()
	if err != nil {
		return err
	}
	for it.HasNext() {
		k, v, err := it.Next()
		if err != nil {
			return err
		}
		if !fn(k, v) {
			return nil
		}
	}
	return it.Err()
}

func (it *Iterator[K, V]) start() error {
	t := it.tree
	if t.deleted {
		return ErrTreeDeleted
	}
	if _, err := t.optimizeLocked(false); err != nil {
		return err
	}
	return it.seek()
}

// relieve runs before the iterator moves to another node. Nodes loaded by
// a scan are resident like any other, so the optimizer gets its chance
// here; a raised low-memory signal forces the pass. The current node is
// kept as the most recent search so the position survives.
func (it *Iterator[K, V]) relieve() error {
	t := it.tree
	force := t.lowMemory() != nil
	if force {
		t.stats.lowMemoryRetries++
		t.log.Warn("low memory during iteration, optimizing", "resident", t.liveCount())
	}
	if it.node != nil && it.node.live() {
		t.lastSearch = it.node
	}
	if _, err := t.optimizeLocked(force); err != nil {
		return err
	}
	return it.sync()
}

// seek positions the iterator from its anchor with a fresh search.
func (it *Iterator[K, V]) seek() error {
	t := it.tree
	defer func() { it.expectedMod = t.modCount }()

	if !it.anchored {
		it.index = -1
		it.node = nil
		if t.root == nil {
			return nil
		}
		w := &nav[K, V]{t: t}
		it.node = w.leftmost(t.root)
		return w.err
	}

	n, idx, ok, err := t.search(it.anchor)
	if err != nil {
		return err
	}
	it.node = n
	if ok && !it.anchorInclusive {
		it.index = idx
	} else {
		it.index = idx - 1
	}
	return nil
}

// sync re-establishes the position after the tree changed.
func (it *Iterator[K, V]) sync() error {
	t := it.tree
	if it.err != nil {
		return it.err
	}
	if it.expectedMod == t.modCount && (it.node == nil || it.node.live()) {
		return nil
	}
	if n := it.node; n != nil && n.live() && it.anchored && !it.anchorInclusive {
		i := it.index
		if i >= 0 && i < n.size() {
			c := t.compare(n.keys[i], it.anchor)
			if c == 0 {
				it.expectedMod = t.modCount
				return nil
			}
			// the anchor was removed in place; its successor took the slot
			if c > 0 && i > 0 && t.compare(n.keys[i-1], it.anchor) < 0 {
				it.index--
				it.expectedMod = t.modCount
				return nil
			}
		}
	}
	if err := it.seek(); err != nil {
		it.err = errors.Wrapf(ErrConcurrentModification, "reposition iterator: %v", err)
		return it.err
	}
	return nil
}

// HasNext reports whether Next will return an entry. It returns false on
// failure; see Err.
func (it *Iterator[K, V]) HasNext() bool {
	t := it.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := it.sync(); err != nil || it.node == nil {
		return false
	}
	if it.index+1 < it.node.size() {
		return true
	}
	if err := it.relieve(); err != nil {
		it.err = err
		return false
	}
	if it.node == nil {
		return false
	}
	if it.index+1 < it.node.size() {
		return true
	}
	w := &nav[K, V]{t: t}
	s := w.successor(it.node)
	if w.err != nil {
		it.err = w.err
		return false
	}
	return s != nil
}

// Next returns the next entry.
func (it *Iterator[K, V]) Next() (K, V, error) {
	t := it.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	var zk K
	var zv V
	if err := it.sync(); err != nil {
		return zk, zv, err
	}
	if it.node == nil {
		return zk, zv, ErrNoSuchElement
	}
	if it.index+1 >= it.node.size() {
		if err := it.relieve(); err != nil {
			return zk, zv, err
		}
		if it.node == nil {
			return zk, zv, ErrNoSuchElement
		}
	}
	if it.index+1 < it.node.size() {
		it.index++
	} else {
		w := &nav[K, V]{t: t}
		s := w.successor(it.node)
		if w.err != nil {
			it.err = w.err
			return zk, zv, w.err
		}
		if s == nil {
			return zk, zv, ErrNoSuchElement
		}
		it.node, it.index = s, 0
	}
	k, v := it.node.keys[it.index], it.node.values[it.index]
	it.anchor, it.anchored, it.anchorInclusive = k, true, false
	it.current = true
	return k, v, nil
}

// Remove deletes the entry last returned by Next and commits. Iteration
// continues with the entry that followed it.
func (it *Iterator[K, V]) Remove() error {
	t := it.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	if !it.current {
		return ErrIllegalState
	}
	if err := it.sync(); err != nil {
		return err
	}
	_, ok, err := t.removeLocked(it.anchor)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrConcurrentModification, "entry already removed")
	}
	it.current = false
	if _, err := t.commitLocked(); err != nil {
		return err
	}
	if err := it.seek(); err != nil {
		it.err = errors.Wrapf(ErrConcurrentModification, "reposition iterator: %v", err)
		return it.err
	}
	return nil
}

// Update replaces the value of the entry last returned by Next and returns
// the old value. The node is left dirty for the next commit.
func (it *Iterator[K, V]) Update(value V) (V, error) {
	t := it.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	if !it.current {
		return zero, ErrIllegalState
	}
	if err := t.usable(); err != nil {
		return zero, err
	}
	if err := it.sync(); err != nil {
		return zero, err
	}
	n, i := it.node, it.index
	if n == nil || i < 0 || i >= n.size() || t.compare(n.keys[i], it.anchor) != 0 {
		return zero, errors.Wrap(ErrConcurrentModification, "entry no longer present")
	}
	old := n.values[i]
	n.values[i] = value
	t.markDirty(n)
	return old, nil
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator[K, V]) Err() error {
	t := it.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	return it.err
}
