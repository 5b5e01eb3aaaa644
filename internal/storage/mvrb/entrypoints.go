package mvrb

import "github.com/google/btree"

const entryPointDegree = 16

type entryPoint[K, V any] struct {
	key  K
	node *node[K, V]
}

// entryPoints is the ordered index of search starting points, keyed by the
// first key of each registered node.
type entryPoints[K, V any] struct {
	compare func(a, b K) int
	index   *btree.BTreeG[entryPoint[K, V]]
}

func newEntryPoints[K, V any](compare func(a, b K) int) *entryPoints[K, V] {
	less := func(a, b entryPoint[K, V]) bool {
		return compare(a.key, b.key) < 0
	}
	return &entryPoints[K, V]{
		compare: compare,
		index:   btree.NewG(entryPointDegree, less),
	}
}

// add registers n under its current first key.
func (e *entryPoints[K, V]) add(n *node[K, V]) {
	if n.size() == 0 || !n.live() {
		return
	}
	if n.epRegistered {
		if e.compare(n.epKey, n.first()) == 0 {
			return
		}
		e.remove(n)
	}
	if old, ok := e.index.ReplaceOrInsert(entryPoint[K, V]{key: n.first(), node: n}); ok && old.node != n {
		old.node.epRegistered = false
	}
	n.epKey = n.first()
	n.epRegistered = true
}

func (e *entryPoints[K, V]) remove(n *node[K, V]) {
	if !n.epRegistered {
		return
	}
	if cur, ok := e.index.Get(entryPoint[K, V]{key: n.epKey}); ok && cur.node == n {
		e.index.Delete(cur)
	}
	n.epRegistered = false
	var zero K
	n.epKey = zero
}

// rekey follows a change of the first key of a registered node.
func (e *entryPoints[K, V]) rekey(n *node[K, V]) {
	if !n.epRegistered {
		return
	}
	if n.size() == 0 {
		e.remove(n)
		return
	}
	e.add(n)
}

// floor returns the node registered under the greatest key <= key.
func (e *entryPoints[K, V]) floor(key K) *node[K, V] {
	var found *node[K, V]
	e.index.DescendLessOrEqual(entryPoint[K, V]{key: key}, func(it entryPoint[K, V]) bool {
		found = it.node
		return false
	})
	return found
}

// ceiling returns the node registered under the least key >= key.
func (e *entryPoints[K, V]) ceiling(key K) *node[K, V] {
	var found *node[K, V]
	e.index.AscendGreaterOrEqual(entryPoint[K, V]{key: key}, func(it entryPoint[K, V]) bool {
		found = it.node
		return false
	})
	return found
}

func (e *entryPoints[K, V]) len() int { return e.index.Len() }

func (e *entryPoints[K, V]) ascend(fn func(n *node[K, V]) bool) {
	e.index.Ascend(func(it entryPoint[K, V]) bool {
		return fn(it.node)
	})
}

// nodes returns the registered nodes in key order.
func (e *entryPoints[K, V]) nodes() []*node[K, V] {
	out := make([]*node[K, V], 0, e.index.Len())
	e.ascend(func(n *node[K, V]) bool {
		out = append(out, n)
		return true
	})
	return out
}

func (e *entryPoints[K, V]) clear() {
	e.ascend(func(n *node[K, V]) bool {
		n.epRegistered = false
		return true
	})
	e.index.Clear(false)
}
