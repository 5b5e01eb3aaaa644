package mvrb

import (
	"reflect"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// Get returns the value stored under key.
func (t *Tree[K, V]) Get(key K) (V, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	n, idx, ok, err := t.search(key)
	if err != nil || !ok {
		return zero, false, err
	}
	return n.values[idx], true, nil
}

// ContainsKey reports whether key is present.
func (t *Tree[K, V]) ContainsKey(key K) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// ContainsValue reports whether any entry holds a value equal to value.
// It scans the whole tree. Values are compared with go-cmp: an Equal
// method of V is used when present, otherwise values are compared field
// by field, unexported fields included.
func (t *Tree[K, V]) ContainsValue(value V) (bool, error) {
	found := false
	err := t.Ascend(func(_ K, v V) bool {
		found = gocmp.Equal(v, value, allFields)
		return !found
	})
	return found, err
}

var allFields = gocmp.Exporter(func(reflect.Type) bool { return true })

// Put stores value under key and commits. It returns the previous value
// and whether key was present.
func (t *Tree[K, V]) Put(key K, value V) (V, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	old, existed, err := t.putLocked(key, value)
	if err != nil {
		return zero, false, err
	}
	if _, err := t.commitLocked(); err != nil {
		return old, existed, err
	}
	return old, existed, nil
}

// PutAll stores every entry and commits once.
func (t *Tree[K, V]) PutAll(entries []Entry[K, V]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		if _, _, err := t.putLocked(e.Key, e.Value); err != nil {
			return errors.Wrapf(err, "put all: %d entries", len(entries))
		}
	}
	_, err := t.commitLocked()
	return err
}

func (t *Tree[K, V]) putLocked(key K, value V) (V, bool, error) {
	var zero V
	if err := t.usable(); err != nil {
		return zero, false, err
	}
	if err := t.persistRecord(key); err != nil {
		return zero, false, err
	}
	if err := t.persistRecord(value); err != nil {
		return zero, false, err
	}
	if _, err := t.optimizeLocked(false); err != nil {
		return zero, false, err
	}

	old, existed, err := t.insert(key, value)
	if err != nil || existed {
		return old, existed, err
	}

	if th := t.settings.OptimizeThreshold; th > 0 {
		t.insertions++
		if t.insertions >= th {
			t.insertions = 0
			if _, err := t.optimizeLocked(true); err != nil {
				return zero, false, err
			}
		}
	}
	return zero, false, nil
}

func (t *Tree[K, V]) insert(key K, value V) (V, bool, error) {
	var zero V
	if t.root == nil {
		n := t.newNode([]K{key}, []V{value})
		n.color = black
		t.setRoot(n)
		t.entryPoints.add(n)
		t.grow(1)
		return zero, false, nil
	}

	n, idx, ok, err := t.search(key)
	if err != nil {
		return zero, false, err
	}
	if ok {
		old := n.values[idx]
		n.values[idx] = value
		t.markDirty(n)
		return old, true, nil
	}
	if err := t.insertAt(n, idx, key, value); err != nil {
		t.broken = err
		t.log.Error("insert failed during rebalance", "error", err)
		return zero, false, err
	}
	t.grow(1)
	return zero, false, nil
}

func (t *Tree[K, V]) grow(delta int) {
	t.header.size = uint64(int64(t.header.size) + int64(delta))
	t.headerDirty = true
	t.modCount++
}

// insertAt places key at slot idx of n, splitting n when it is full.
func (t *Tree[K, V]) insertAt(n *node[K, V], idx int, key K, value V) error {
	if n.size() < t.settings.PageCapacity {
		n.insertSlot(idx, key, value)
		t.markDirty(n)
		if idx == 0 {
			t.entryPoints.rekey(n)
		}
		return nil
	}

	if idx == n.size() {
		return t.linkSuccessor(n, t.newNode([]K{key}, []V{value}))
	}

	mid := n.size() / 2
	keys, values := n.splitTail(mid)
	nn := t.newNode(keys, values)
	t.markDirty(n)
	if idx <= mid {
		n.insertSlot(idx, key, value)
		if idx == 0 {
			t.entryPoints.rekey(n)
		}
	} else {
		nn.insertSlot(idx-mid, key, value)
	}
	return t.linkSuccessor(n, nn)
}

// linkSuccessor hangs nn into the tree as the in-order successor of n and
// rebalances.
func (t *Tree[K, V]) linkSuccessor(n, nn *node[K, V]) error {
	w := &nav[K, V]{t: t}
	r := w.right(n)
	if w.err != nil {
		return w.err
	}
	if r == nil {
		t.setRight(n, nn)
		t.setParent(nn, n)
	} else {
		s := w.leftmost(r)
		if w.err != nil {
			return w.err
		}
		t.setLeft(s, nn)
		t.setParent(nn, s)
	}
	t.entryPoints.add(nn)
	t.fixAfterInsertion(w, nn)
	return w.err
}

// Remove deletes key and commits. It returns the removed value and whether
// key was present.
func (t *Tree[K, V]) Remove(key K) (V, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok, err := t.removeLocked(key)
	if err != nil || !ok {
		return old, ok, err
	}
	_, err = t.commitLocked()
	return old, ok, err
}

func (t *Tree[K, V]) removeLocked(key K) (V, bool, error) {
	var zero V
	if err := t.usable(); err != nil {
		return zero, false, err
	}
	if _, err := t.optimizeLocked(false); err != nil {
		return zero, false, err
	}
	n, idx, ok, err := t.search(key)
	if err != nil || !ok {
		return zero, false, err
	}
	_, old := n.removeSlot(idx)
	t.markDirty(n)
	t.grow(-1)
	if n.size() > 0 {
		if idx == 0 {
			t.entryPoints.rekey(n)
		}
		return old, true, nil
	}
	if err := t.deleteNode(n); err != nil {
		t.broken = err
		t.log.Error("remove failed during rebalance", "error", err)
		return zero, false, err
	}
	return old, true, nil
}

// deleteNode unlinks the empty node p from the tree and deletes its record.
func (t *Tree[K, V]) deleteNode(p *node[K, V]) error {
	t.entryPoints.remove(p)
	w := &nav[K, V]{t: t}

	if l, r := w.left(p), w.right(p); l != nil && r != nil {
		// p takes over the content of its successor, which is then removed
		s := w.leftmost(r)
		if w.err != nil {
			return w.err
		}
		t.entryPoints.remove(s)
		p.keys, p.values = s.keys, s.values
		s.keys, s.values = nil, nil
		t.markDirty(p)
		t.entryPoints.add(p)
		p = s
	}
	repl := w.left(p)
	if repl == nil {
		repl = w.right(p)
	}
	pp := w.parent(p)
	if w.err != nil {
		return w.err
	}

	switch {
	case repl != nil:
		t.setParent(repl, pp)
		t.replaceChild(pp, p, repl)
		p.parent, p.left, p.right = link[K, V]{}, link[K, V]{}, link[K, V]{}
		if p.color == black {
			t.fixAfterDeletion(w, repl)
		}
	case pp == nil:
		t.setRoot(nil)
	default:
		if p.color == black {
			t.fixAfterDeletion(w, p)
		}
		if pp = w.parent(p); pp != nil {
			if pp.left.node == p {
				t.setLeft(pp, nil)
			} else if pp.right.node == p {
				t.setRight(pp, nil)
			}
		}
		p.parent = link[K, V]{}
	}
	if w.err != nil {
		return w.err
	}
	return t.dropNode(p)
}

// dropNode forgets a node that left the tree. Its record is deleted by the
// next commit.
func (t *Tree[K, V]) dropNode(n *node[K, V]) error {
	t.entryPoints.remove(n)
	t.cache.remove(n)
	if n.dirty {
		delete(t.dirty, n)
		n.dirty = false
	}
	if !n.rid.IsValid() {
		t.transient--
	}
	if t.lastSearch == n {
		t.lastSearch = nil
	}
	n.deleted = true
	n.detach()
	if n.rid.IsValid() {
		t.doomed = append(t.doomed, n.rid)
	}
	return nil
}

// First returns the smallest entry.
func (t *Tree[K, V]) First() (Entry[K, V], bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edge(true)
}

// Last returns the greatest entry.
func (t *Tree[K, V]) Last() (Entry[K, V], bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edge(false)
}

func (t *Tree[K, V]) edge(first bool) (Entry[K, V], bool, error) {
	if t.root == nil {
		return Entry[K, V]{}, false, nil
	}
	w := &nav[K, V]{t: t}
	if first {
		n := w.leftmost(t.root)
		if w.err != nil {
			return Entry[K, V]{}, false, w.err
		}
		return Entry[K, V]{Key: n.first(), Value: n.values[0]}, true, nil
	}
	n := w.rightmost(t.root)
	if w.err != nil {
		return Entry[K, V]{}, false, w.err
	}
	return Entry[K, V]{Key: n.last(), Value: n.values[n.size()-1]}, true, nil
}

// Floor returns the entry with the greatest key <= key.
func (t *Tree[K, V]) Floor(key K) (Entry[K, V], bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, idx, ok, err := t.search(key)
	if err != nil || n == nil {
		return Entry[K, V]{}, false, err
	}
	if ok {
		return Entry[K, V]{Key: n.keys[idx], Value: n.values[idx]}, true, nil
	}
	if idx > 0 {
		return Entry[K, V]{Key: n.keys[idx-1], Value: n.values[idx-1]}, true, nil
	}
	w := &nav[K, V]{t: t}
	p := w.predecessor(n)
	if w.err != nil || p == nil {
		return Entry[K, V]{}, false, w.err
	}
	return Entry[K, V]{Key: p.last(), Value: p.values[p.size()-1]}, true, nil
}

// Ceiling returns the entry with the least key >= key.
func (t *Tree[K, V]) Ceiling(key K) (Entry[K, V], bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, idx, _, err := t.search(key)
	if err != nil || n == nil {
		return Entry[K, V]{}, false, err
	}
	if idx < n.size() {
		return Entry[K, V]{Key: n.keys[idx], Value: n.values[idx]}, true, nil
	}
	w := &nav[K, V]{t: t}
	s := w.successor(n)
	if w.err != nil || s == nil {
		return Entry[K, V]{}, false, w.err
	}
	return Entry[K, V]{Key: s.first(), Value: s.values[0]}, true, nil
}
