package mvrb

import "github.com/KilimcininKorOglu/mvrbtree/internal/storage"

type color bool

const (
	red   color = false
	black color = true
)

func (c color) String() string {
	if c == black {
		return "black"
	}
	return "red"
}

// link is a reference to a neighbouring node. A resolved link carries the
// live node; an unresolved one only the RID of its record.
type link[K, V any] struct {
	rid  storage.RID
	node *node[K, V]
}

func (l link[K, V]) isNil() bool {
	return l.node == nil && !l.rid.IsValid()
}

// relink points l at n and reports whether the persisted form of l changed.
// Links to nodes without a RID always count as changed: the RID is patched
// in when that node is first written.
func (l *link[K, V]) relink(n *node[K, V]) bool {
	old := l.rid
	l.node = n
	l.rid = ridOf(n)
	return old != l.rid || (n != nil && !n.rid.IsValid())
}

func ridOf[K, V any](n *node[K, V]) storage.RID {
	if n == nil {
		return storage.InvalidRID
	}
	return n.rid
}

// node is one page of the tree: a sorted run of at most PageCapacity slots.
type node[K, V any] struct {
	rid    storage.RID
	keys   []K
	values []V

	parent link[K, V]
	left   link[K, V]
	right  link[K, V]
	color  color

	dirty   bool
	evicted bool
	deleted bool

	// entry-point registration
	epKey        K
	epRegistered bool
}

func newNode[K, V any](keys []K, values []V) *node[K, V] {
	return &node[K, V]{keys: keys, values: values, color: red}
}

func (n *node[K, V]) size() int { return len(n.keys) }

func (n *node[K, V]) first() K { return n.keys[0] }

func (n *node[K, V]) last() K { return n.keys[len(n.keys)-1] }

// live reports whether n is still part of the resident tree.
func (n *node[K, V]) live() bool {
	return !n.evicted && !n.deleted
}

func (n *node[K, V]) links() [3]*link[K, V] {
	return [3]*link[K, V]{&n.parent, &n.left, &n.right}
}

// search returns the slot of key and true, or the slot where key would be
// inserted and false.
func (n *node[K, V]) search(compare func(a, b K) int, key K) (int, bool) {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c := compare(n.keys[mid], key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func (n *node[K, V]) insertSlot(i int, key K, value V) {
	var zk K
	var zv V
	n.keys = append(n.keys, zk)
	n.values = append(n.values, zv)
	copy(n.keys[i+1:], n.keys[i:])
	copy(n.values[i+1:], n.values[i:])
	n.keys[i] = key
	n.values[i] = value
}

func (n *node[K, V]) removeSlot(i int) (K, V) {
	key, value := n.keys[i], n.values[i]
	last := len(n.keys) - 1
	copy(n.keys[i:], n.keys[i+1:])
	copy(n.values[i:], n.values[i+1:])
	var zk K
	var zv V
	n.keys[last] = zk
	n.values[last] = zv
	n.keys = n.keys[:last]
	n.values = n.values[:last]
	return key, value
}

// splitTail moves the slots from mid on into new slices.
func (n *node[K, V]) splitTail(mid int) ([]K, []V) {
	keys := make([]K, len(n.keys)-mid)
	values := make([]V, len(n.values)-mid)
	copy(keys, n.keys[mid:])
	copy(values, n.values[mid:])
	var zk K
	var zv V
	for i := mid; i < len(n.keys); i++ {
		n.keys[i] = zk
		n.values[i] = zv
	}
	n.keys = n.keys[:mid]
	n.values = n.values[:mid]
	return keys, values
}

// unlinkFrom drops the resolved references of n to other, keeping RIDs.
func (n *node[K, V]) unlinkFrom(other *node[K, V]) {
	for _, l := range n.links() {
		if l.node == other {
			l.node = nil
		}
	}
}

// detach drops every resolved reference of n, keeping RIDs.
func (n *node[K, V]) detach() {
	n.parent.node = nil
	n.left.node = nil
	n.right.node = nil
}
