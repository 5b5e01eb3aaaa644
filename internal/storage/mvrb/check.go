package mvrb

import (
	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// checkNode validates the content of a single node.
func (t *Tree[K, V]) checkNode(n *node[K, V]) error {
	if n.size() == 0 {
		return corrupt(n.rid, "empty node")
	}
	if len(n.keys) != len(n.values) {
		return corrupt(n.rid, "%d keys but %d values", len(n.keys), len(n.values))
	}
	for i := 1; i < len(n.keys); i++ {
		if t.compare(n.keys[i-1], n.keys[i]) >= 0 {
			return corrupt(n.rid, "keys out of order at slot %d", i)
		}
	}
	return nil
}

// CheckStructure validates the resident part of the tree: node contents,
// symmetry of resolved links, the node cache and the entry-point index.
// It loads nothing. All problems found are returned together.
func (t *Tree[K, V]) CheckStructure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkResident()
}

func (t *Tree[K, V]) checkResident() error {
	var errs error
	resident := make(map[*node[K, V]]bool, t.liveCount())
	t.cache.each(func(n *node[K, V]) { resident[n] = true })
	for n := range t.dirty {
		resident[n] = true
	}

	t.cache.each(func(n *node[K, V]) {
		if got := t.cache.get(n.rid); got != n {
			errs = multierr.Append(errs, corrupt(n.rid, "cache entry mismatch"))
		}
	})
	fresh := 0
	for n := range resident {
		if !n.live() {
			errs = multierr.Append(errs, corrupt(n.rid, "evicted or deleted node is resident"))
			continue
		}
		if !n.rid.IsValid() {
			fresh++
			if !n.dirty {
				errs = multierr.Append(errs, corrupt(n.rid, "unwritten node is not dirty"))
			}
		}
		if err := t.checkNode(n); err != nil {
			errs = multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, t.checkLinks(n))
	}
	if fresh != t.transient {
		errs = multierr.Append(errs, corrupt(storage.InvalidRID, "%d unwritten nodes, counter says %d", fresh, t.transient))
	}

	t.entryPoints.ascend(func(n *node[K, V]) bool {
		switch {
		case !n.live():
			errs = multierr.Append(errs, corrupt(n.rid, "entry point is not live"))
		case !resident[n]:
			errs = multierr.Append(errs, corrupt(n.rid, "entry point is not resident"))
		case t.compare(n.epKey, n.first()) != 0:
			errs = multierr.Append(errs, corrupt(n.rid, "entry point key is stale"))
		}
		return true
	})
	if t.root != nil && t.root.parent.rid.IsValid() {
		errs = multierr.Append(errs, corrupt(t.root.rid, "root has a parent"))
	}
	return errs
}

func (t *Tree[K, V]) checkLinks(n *node[K, V]) error {
	var errs error
	check := func(name string, l link[K, V], back func(*node[K, V]) *link[K, V]) {
		c := l.node
		if c == nil {
			return
		}
		if l.rid != c.rid {
			errs = multierr.Append(errs, corrupt(n.rid, "%s link holds %s but node is %s", name, l.rid, c.rid))
		}
		if !c.live() {
			errs = multierr.Append(errs, corrupt(n.rid, "%s link points to a dead node", name))
		}
		if b := back(c); b.node != n {
			errs = multierr.Append(errs, corrupt(n.rid, "%s %s does not link back", name, c.rid))
		}
	}
	check("left", n.left, func(c *node[K, V]) *link[K, V] { return &c.parent })
	check("right", n.right, func(c *node[K, V]) *link[K, V] { return &c.parent })
	if p := n.parent.node; p != nil {
		if l := p.left.node; l != n && p.right.node != n {
			errs = multierr.Append(errs, corrupt(n.rid, "parent %s does not link back", p.rid))
		}
		if l := n.parent.rid; l != p.rid {
			errs = multierr.Append(errs, corrupt(n.rid, "parent link holds %s but node is %s", l, p.rid))
		}
	}
	return errs
}

// Verify walks the whole tree, loading nodes as needed, and checks key
// order across nodes, the red-black rules and the entry count.
func (t *Tree[K, V]) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		if t.header.size != 0 {
			return corrupt(t.header.root, "empty tree with size %d", t.header.size)
		}
		return nil
	}
	if t.root.color != black {
		return corrupt(t.root.rid, "root is red")
	}
	v := verifier[K, V]{t: t, w: &nav[K, V]{t: t}}
	if _, err := v.walk(t.root); err != nil {
		return err
	}
	if uint64(v.count) != t.header.size {
		return corrupt(t.root.rid, "found %d entries, header says %d", v.count, t.header.size)
	}
	return t.checkResident()
}

type verifier[K, V any] struct {
	t       *Tree[K, V]
	w       *nav[K, V]
	prev    K
	hasPrev bool
	count   int
}

// walk checks the subtree under n in order and returns its black height.
func (v *verifier[K, V]) walk(n *node[K, V]) (int, error) {
	if n == nil {
		return 1, nil
	}
	l := v.w.left(n)
	if v.w.err != nil {
		return 0, v.w.err
	}
	lh, err := v.walk(l)
	if err != nil {
		return 0, err
	}
	if err := v.t.checkNode(n); err != nil {
		return 0, err
	}
	if v.hasPrev && v.t.compare(v.prev, n.first()) >= 0 {
		return 0, corrupt(n.rid, "keys overlap the previous node")
	}
	v.prev, v.hasPrev = n.last(), true
	v.count += n.size()

	r := v.w.right(n)
	if v.w.err != nil {
		return 0, v.w.err
	}
	if n.color == red && (colorOf(l) == red || colorOf(r) == red) {
		return 0, corrupt(n.rid, "red node with red child")
	}
	rh, err := v.walk(r)
	if err != nil {
		return 0, err
	}
	if lh != rh {
		return 0, corrupt(n.rid, "black height %d on the left, %d on the right", lh, rh)
	}
	if n.color == black {
		lh++
	}
	return lh, nil
}
