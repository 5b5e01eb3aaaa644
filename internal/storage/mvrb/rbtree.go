package mvrb

import "github.com/KilimcininKorOglu/mvrbtree/internal/storage"

func (t *Tree[K, V]) markDirty(n *node[K, V]) {
	if n == nil || n.deleted || n.dirty {
		return
	}
	n.dirty = true
	t.dirty[n] = struct{}{}
}

func (t *Tree[K, V]) setParent(n, p *node[K, V]) {
	if n != nil && n.parent.relink(p) {
		t.markDirty(n)
	}
}

func (t *Tree[K, V]) setLeft(n, c *node[K, V]) {
	if n != nil && n.left.relink(c) {
		t.markDirty(n)
	}
}

func (t *Tree[K, V]) setRight(n, c *node[K, V]) {
	if n != nil && n.right.relink(c) {
		t.markDirty(n)
	}
}

func (t *Tree[K, V]) setColor(n *node[K, V], c color) {
	if n != nil && n.color != c {
		n.color = c
		t.markDirty(n)
	}
}

func colorOf[K, V any](n *node[K, V]) color {
	if n == nil {
		return black
	}
	return n.color
}

func (t *Tree[K, V]) setRoot(n *node[K, V]) {
	t.root = n
	t.setParent(n, nil)
	if rid := ridOf(n); t.header.root != rid {
		t.header.root = rid
		t.headerDirty = true
	}
}

// newNode creates a node that has no record yet. It stays dirty until the
// next commit writes it.
func (t *Tree[K, V]) newNode(keys []K, values []V) *node[K, V] {
	n := newNode(keys, values)
	t.transient++
	t.markDirty(n)
	return n
}

// parentOf resolves the parent link of n, loading the parent if needed.
func (t *Tree[K, V]) parentOf(n *node[K, V]) (*node[K, V], error) {
	if n.parent.node != nil {
		return n.parent.node, nil
	}
	if !n.parent.rid.IsValid() {
		return nil, nil
	}
	if !n.live() {
		return nil, ErrConcurrentModification
	}
	p, err := t.loadNode(n.parent.rid)
	if err != nil {
		return nil, err
	}
	switch {
	case p.left.rid == n.rid && (p.left.node == nil || p.left.node == n):
		p.left.node = n
	case p.right.rid == n.rid && (p.right.node == nil || p.right.node == n):
		p.right.node = n
	default:
		return nil, corrupt(n.rid, "parent %s does not link back", p.rid)
	}
	n.parent.node = p
	return p, nil
}

func (t *Tree[K, V]) leftOf(n *node[K, V]) (*node[K, V], error) {
	return t.childOf(n, &n.left)
}

func (t *Tree[K, V]) rightOf(n *node[K, V]) (*node[K, V], error) {
	return t.childOf(n, &n.right)
}

func (t *Tree[K, V]) childOf(n *node[K, V], l *link[K, V]) (*node[K, V], error) {
	if l.node != nil {
		return l.node, nil
	}
	if !l.rid.IsValid() {
		return nil, nil
	}
	if !n.live() {
		return nil, ErrConcurrentModification
	}
	c, err := t.loadNode(l.rid)
	if err != nil {
		return nil, err
	}
	if c.parent.rid != n.rid || (c.parent.node != nil && c.parent.node != n) {
		return nil, corrupt(c.rid, "child of %s links to parent %s", n.rid, c.parent.rid)
	}
	l.node = c
	c.parent.node = n
	return c, nil
}

// loadNode returns the live node of rid, reading it from storage when it is
// not resident. A freshly read node is cached, registered as an entry point
// and reconnected to its resident neighbours.
func (t *Tree[K, V]) loadNode(rid storage.RID) (*node[K, V], error) {
	if n := t.cache.get(rid); n != nil {
		return n, nil
	}
	data, err := t.store.Read(rid)
	if err != nil {
		return nil, &StorageError{Op: "read node", RID: rid, Err: err}
	}
	n, err := t.codec.decode(rid, data)
	if err != nil {
		return nil, err
	}
	if t.settings.RuntimeChecks {
		if err := t.checkNode(n); err != nil {
			return nil, err
		}
	}
	if err := t.cache.put(n); err != nil {
		return nil, err
	}
	t.entryPoints.add(n)
	t.reconnect(n)
	t.stats.loads++
	return n, nil
}

func (t *Tree[K, V]) reconnect(n *node[K, V]) {
	if p := t.cache.get(n.parent.rid); p != nil {
		switch {
		case p.left.rid == n.rid && p.left.node == nil:
			p.left.node = n
			n.parent.node = p
		case p.right.rid == n.rid && p.right.node == nil:
			p.right.node = n
			n.parent.node = p
		}
	}
	for _, l := range []*link[K, V]{&n.left, &n.right} {
		if c := t.cache.get(l.rid); c != nil && c.parent.rid == n.rid && c.parent.node == nil {
			l.node = c
			c.parent.node = n
		}
	}
}

// nav walks links for one structural operation and keeps the first load
// failure. Once it failed every accessor returns nil.
type nav[K, V any] struct {
	t   *Tree[K, V]
	err error
}

func (w *nav[K, V]) resolve(n *node[K, V], fn func(*node[K, V]) (*node[K, V], error)) *node[K, V] {
	if n == nil || w.err != nil {
		return nil
	}
	r, err := fn(n)
	if err != nil {
		w.err = err
		return nil
	}
	return r
}

func (w *nav[K, V]) parent(n *node[K, V]) *node[K, V] { return w.resolve(n, w.t.parentOf) }
func (w *nav[K, V]) left(n *node[K, V]) *node[K, V]   { return w.resolve(n, w.t.leftOf) }
func (w *nav[K, V]) right(n *node[K, V]) *node[K, V]  { return w.resolve(n, w.t.rightOf) }

func (w *nav[K, V]) leftmost(n *node[K, V]) *node[K, V] {
	for n != nil {
		l := w.left(n)
		if l == nil {
			break
		}
		n = l
	}
	return n
}

func (w *nav[K, V]) rightmost(n *node[K, V]) *node[K, V] {
	for n != nil {
		r := w.right(n)
		if r == nil {
			break
		}
		n = r
	}
	return n
}

// successor returns the in-order successor of n.
func (w *nav[K, V]) successor(n *node[K, V]) *node[K, V] {
	if r := w.right(n); r != nil {
		return w.leftmost(r)
	}
	ch, p := n, w.parent(n)
	for p != nil && p.right.node == ch {
		ch, p = p, w.parent(p)
	}
	return p
}

// predecessor returns the in-order predecessor of n.
func (w *nav[K, V]) predecessor(n *node[K, V]) *node[K, V] {
	if l := w.left(n); l != nil {
		return w.rightmost(l)
	}
	ch, p := n, w.parent(n)
	for p != nil && p.left.node == ch {
		ch, p = p, w.parent(p)
	}
	return p
}

func (t *Tree[K, V]) replaceChild(pp, old, repl *node[K, V]) {
	switch {
	case pp == nil:
		t.setRoot(repl)
	case pp.left.node == old:
		t.setLeft(pp, repl)
	default:
		t.setRight(pp, repl)
	}
}

func (t *Tree[K, V]) rotateLeft(w *nav[K, V], p *node[K, V]) {
	if p == nil {
		return
	}
	r := w.right(p)
	rl := w.left(r)
	pp := w.parent(p)
	if r == nil || w.err != nil {
		return
	}
	t.setRight(p, rl)
	t.setParent(rl, p)
	t.setParent(r, pp)
	t.replaceChild(pp, p, r)
	t.setLeft(r, p)
	t.setParent(p, r)
}

func (t *Tree[K, V]) rotateRight(w *nav[K, V], p *node[K, V]) {
	if p == nil {
		return
	}
	l := w.left(p)
	lr := w.right(l)
	pp := w.parent(p)
	if l == nil || w.err != nil {
		return
	}
	t.setLeft(p, lr)
	t.setParent(lr, p)
	t.setParent(l, pp)
	t.replaceChild(pp, p, l)
	t.setRight(l, p)
	t.setParent(p, l)
}

func (t *Tree[K, V]) fixAfterInsertion(w *nav[K, V], x *node[K, V]) {
	t.setColor(x, red)
	for x != nil && x != t.root && w.err == nil {
		p := w.parent(x)
		if colorOf(p) != red {
			break
		}
		g := w.parent(p)
		if g != nil && g.left.node == p {
			y := w.right(g)
			if colorOf(y) == red {
				t.setColor(p, black)
				t.setColor(y, black)
				t.setColor(g, red)
				x = g
				continue
			}
			if p.right.node == x {
				x = p
				t.rotateLeft(w, x)
			}
			p = w.parent(x)
			g = w.parent(p)
			t.setColor(p, black)
			t.setColor(g, red)
			t.rotateRight(w, g)
		} else {
			y := w.left(g)
			if colorOf(y) == red {
				t.setColor(p, black)
				t.setColor(y, black)
				t.setColor(g, red)
				x = g
				continue
			}
			if p.left.node == x {
				x = p
				t.rotateRight(w, x)
			}
			p = w.parent(x)
			g = w.parent(p)
			t.setColor(p, black)
			t.setColor(g, red)
			t.rotateLeft(w, g)
		}
	}
	t.setColor(t.root, black)
}

func (t *Tree[K, V]) fixAfterDeletion(w *nav[K, V], x *node[K, V]) {
	for x != t.root && colorOf(x) == black && w.err == nil {
		p := w.parent(x)
		if p == nil {
			break
		}
		if p.left.node == x {
			sib := w.right(p)
			if colorOf(sib) == red {
				t.setColor(sib, black)
				t.setColor(p, red)
				t.rotateLeft(w, p)
				p = w.parent(x)
				sib = w.right(p)
			}
			if colorOf(w.left(sib)) == black && colorOf(w.right(sib)) == black {
				t.setColor(sib, red)
				x = p
				continue
			}
			if colorOf(w.right(sib)) == black {
				t.setColor(w.left(sib), black)
				t.setColor(sib, red)
				t.rotateRight(w, sib)
				p = w.parent(x)
				sib = w.right(p)
			}
			t.setColor(sib, colorOf(p))
			t.setColor(p, black)
			t.setColor(w.right(sib), black)
			t.rotateLeft(w, p)
			x = t.root
		} else {
			sib := w.left(p)
			if colorOf(sib) == red {
				t.setColor(sib, black)
				t.setColor(p, red)
				t.rotateRight(w, p)
				p = w.parent(x)
				sib = w.left(p)
			}
			if colorOf(w.right(sib)) == black && colorOf(w.left(sib)) == black {
				t.setColor(sib, red)
				x = p
				continue
			}
			if colorOf(w.left(sib)) == black {
				t.setColor(w.right(sib), black)
				t.setColor(sib, red)
				t.rotateLeft(w, sib)
				p = w.parent(x)
				sib = w.left(p)
			}
			t.setColor(sib, colorOf(p))
			t.setColor(p, black)
			t.setColor(w.left(sib), black)
			t.rotateRight(w, p)
			x = t.root
		}
	}
	t.setColor(x, black)
}
