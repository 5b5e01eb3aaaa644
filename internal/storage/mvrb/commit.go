package mvrb

import (
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// CommitChanges writes every dirty node and the tree header, then deletes
// the records of nodes that left the tree. It returns the number of node
// records written; a second call without intervening changes writes nothing.
//
// On a store failure the commit stops: nodes written so far stay clean,
// the rest stay dirty and a later commit resumes with them.
func (t *Tree[K, V]) CommitChanges() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitLocked()
}

func (t *Tree[K, V]) commitLocked() (int, error) {
	if err := t.usable(); err != nil {
		return 0, err
	}
	written := 0
	for len(t.dirty) > 0 {
		var fresh []*node[K, V]
		stored := make([]*node[K, V], 0, len(t.dirty))
		for n := range t.dirty {
			if n.rid.IsValid() {
				stored = append(stored, n)
			} else {
				fresh = append(fresh, n)
			}
		}
		// New nodes first: creating them assigns the RIDs that their
		// neighbours have to reference.
		for _, batch := range [][]*node[K, V]{fresh, stored} {
			for _, n := range batch {
				if !n.dirty {
					continue
				}
				if err := t.writeNode(n); err != nil {
					t.log.Error("commit failed",
						"rid", n.rid.String(),
						"written", written,
						"pending", len(t.dirty),
						"error", err)
					return written, err
				}
				written++
			}
		}
	}
	if err := t.writeHeader(); err != nil {
		t.log.Error("commit failed writing tree header", "error", err)
		return written, err
	}
	if err := t.purge(); err != nil {
		t.log.Error("commit failed deleting removed nodes",
			"pending", len(t.doomed),
			"error", err)
		return written, err
	}
	if written > 0 {
		t.stats.nodesWritten += uint64(written)
		t.log.Debug("changes committed", "nodes", written, "size", t.header.size)
	}
	return written, nil
}

func (t *Tree[K, V]) writeNode(n *node[K, V]) error {
	data, err := t.codec.encode(n)
	if err != nil {
		return err
	}
	if n.rid.IsValid() {
		if err := t.store.Update(n.rid, data); err != nil {
			return &StorageError{Op: "update node", RID: n.rid, Err: err}
		}
	} else {
		rid, err := t.store.Create(data)
		if err != nil {
			return &StorageError{Op: "create node", Err: err}
		}
		n.rid = rid
		t.transient--
		if err := t.cache.put(n); err != nil {
			return err
		}
		t.adoptRID(n)
	}
	// A link to an unwritten node was stored as InvalidRID; the node stays
	// dirty until that neighbour is created and the link rewritten.
	if awaitsNeighbour(n) {
		return nil
	}
	n.dirty = false
	delete(t.dirty, n)
	return nil
}

func awaitsNeighbour[K, V any](n *node[K, V]) bool {
	for _, l := range n.links() {
		if l.node != nil && !l.node.rid.IsValid() {
			return true
		}
	}
	return false
}

// adoptRID propagates the RID of a newly created node into the links of
// its neighbours, which makes them dirty.
func (t *Tree[K, V]) adoptRID(n *node[K, V]) {
	if p := n.parent.node; p != nil {
		if p.left.node == n {
			t.setLeft(p, n)
		} else if p.right.node == n {
			t.setRight(p, n)
		}
	}
	t.setParent(n.left.node, n)
	t.setParent(n.right.node, n)
	if n == t.root && t.header.root != n.rid {
		t.header.root = n.rid
		t.headerDirty = true
	}
}

func (t *Tree[K, V]) writeHeader() error {
	if !t.headerDirty {
		return nil
	}
	data := t.header.marshal()
	if t.headerRID.IsValid() {
		if err := t.store.Update(t.headerRID, data); err != nil {
			return &StorageError{Op: "update tree header", RID: t.headerRID, Err: err}
		}
	} else {
		rid, err := t.store.Create(data)
		if err != nil {
			return &StorageError{Op: "create tree header", Err: err}
		}
		t.headerRID = rid
	}
	t.headerDirty = false
	return nil
}

// purge deletes the records of dropped nodes. It runs once the nodes and
// the header no longer reference them.
func (t *Tree[K, V]) purge() error {
	for len(t.doomed) > 0 {
		rid := t.doomed[len(t.doomed)-1]
		if err := t.store.Delete(rid); err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return &StorageError{Op: "delete node", RID: rid, Err: err}
		}
		t.doomed = t.doomed[:len(t.doomed)-1]
	}
	return nil
}

// Clear removes every entry, deleting all node records, and commits the
// empty header.
func (t *Tree[K, V]) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearLocked()
}

func (t *Tree[K, V]) clearLocked() error {
	if t.deleted {
		return ErrTreeDeleted
	}
	var records []storage.RID
	if t.root != nil {
		var err error
		if records, err = t.collectRecords(t.root); err != nil {
			return err
		}
	}
	t.resetMemory()
	t.broken = nil
	t.insertions = 0
	t.header.root = storage.InvalidRID
	t.header.size = 0
	t.headerDirty = true
	t.doomed = records
	_, err := t.commitLocked()
	return err
}

// collectRecords returns the RIDs of the stored nodes of the subtree under
// n. Nodes that are not resident are read without being cached.
func (t *Tree[K, V]) collectRecords(n *node[K, V]) ([]storage.RID, error) {
	var rids []storage.RID
	stack := []*node[K, V]{n}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range []link[K, V]{x.left, x.right} {
			switch {
			case l.node != nil:
				stack = append(stack, l.node)
			case l.rid.IsValid():
				c, err := t.peekNode(l.rid)
				if err != nil {
					return nil, err
				}
				stack = append(stack, c)
			}
		}
		if x.rid.IsValid() {
			rids = append(rids, x.rid)
		}
	}
	return rids, nil
}

// peekNode returns the resident node of rid or a detached decoded copy.
func (t *Tree[K, V]) peekNode(rid storage.RID) (*node[K, V], error) {
	if n := t.cache.get(rid); n != nil {
		return n, nil
	}
	data, err := t.store.Read(rid)
	if err != nil {
		return nil, &StorageError{Op: "read node", RID: rid, Err: err}
	}
	return t.codec.decode(rid, data)
}

// Delete clears the tree and deletes its header record. Every later
// operation fails with ErrTreeDeleted.
func (t *Tree[K, V]) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.clearLocked(); err != nil {
		return err
	}
	if t.headerRID.IsValid() {
		if err := t.store.Delete(t.headerRID); err != nil {
			return &StorageError{Op: "delete tree header", RID: t.headerRID, Err: err}
		}
	}
	t.log.Info("tree deleted", "header", t.headerRID.String())
	t.headerRID = storage.InvalidRID
	t.headerDirty = false
	t.deleted = true
	return nil
}
