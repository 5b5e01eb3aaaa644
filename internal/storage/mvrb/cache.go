package mvrb

import "github.com/KilimcininKorOglu/mvrbtree/internal/storage"

// nodeCache maps a RID to the one live node holding that record.
type nodeCache[K, V any] struct {
	nodes map[storage.RID]*node[K, V]
}

func newNodeCache[K, V any]() *nodeCache[K, V] {
	return &nodeCache[K, V]{nodes: make(map[storage.RID]*node[K, V])}
}

func (c *nodeCache[K, V]) get(rid storage.RID) *node[K, V] {
	if !rid.IsValid() {
		return nil
	}
	return c.nodes[rid]
}

// put registers n. A different node already registered for the same RID
// is a corruption: two live objects would describe one record.
func (c *nodeCache[K, V]) put(n *node[K, V]) error {
	if !n.rid.IsValid() {
		return corrupt(n.rid, "cannot cache a node without RID")
	}
	if cur, ok := c.nodes[n.rid]; ok && cur != n {
		return corrupt(n.rid, "record already has a live node")
	}
	c.nodes[n.rid] = n
	return nil
}

func (c *nodeCache[K, V]) remove(n *node[K, V]) {
	if cur, ok := c.nodes[n.rid]; ok && cur == n {
		delete(c.nodes, n.rid)
	}
}

func (c *nodeCache[K, V]) len() int { return len(c.nodes) }

func (c *nodeCache[K, V]) each(fn func(n *node[K, V])) {
	for _, n := range c.nodes {
		fn(n)
	}
}

func (c *nodeCache[K, V]) clear() {
	c.nodes = make(map[storage.RID]*node[K, V])
}
