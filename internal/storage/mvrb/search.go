package mvrb

import (
	"time"

	"github.com/pkg/errors"
)

func (t *Tree[K, V]) lowMemory() error {
	if t.optimization.Load() > 0 {
		return ErrLowMemory
	}
	return nil
}

// startNode picks where a search for key begins: the closest entry point,
// or the root when no usable entry point exists.
func (t *Tree[K, V]) startNode(key K) *node[K, V] {
	n := t.entryPoints.floor(key)
	if n == nil {
		n = t.entryPoints.ceiling(key)
	}
	if n == nil || !n.live() || n.size() == 0 {
		return t.root
	}
	return n
}

// locate finds the node whose range holds key. It returns the node, the
// slot of key (or its insertion slot) and whether key is present. The
// result is nil only for an empty tree. Searches fail with ErrLowMemory
// while the low-memory signal is raised.
func (t *Tree[K, V]) locate(key K) (*node[K, V], int, bool, error) {
	if t.root == nil {
		return nil, 0, false, nil
	}
	if err := t.lowMemory(); err != nil {
		return nil, 0, false, err
	}

	start := t.startNode(key)
	if t.compare(key, start.first()) >= 0 && t.compare(key, start.last()) <= 0 {
		return t.found(start, key)
	}

	// Climb to the highest ancestor whose subtree bound excludes key and
	// descend from there.
	top, child := start, start
	for {
		if err := t.lowMemory(); err != nil {
			return nil, 0, false, err
		}
		p, err := t.parentOf(child)
		if err != nil {
			return nil, 0, false, err
		}
		if p == nil {
			break
		}
		if p.left.node == child {
			if t.compare(key, p.first()) >= 0 {
				top = p
			}
		} else if t.compare(key, p.last()) <= 0 {
			top = p
		}
		child = p
	}
	return t.descend(top, key)
}

func (t *Tree[K, V]) descend(n *node[K, V], key K) (*node[K, V], int, bool, error) {
	for {
		if err := t.lowMemory(); err != nil {
			return nil, 0, false, err
		}
		if t.compare(key, n.first()) < 0 {
			l, err := t.leftOf(n)
			if err != nil {
				return nil, 0, false, err
			}
			if l == nil {
				t.lastSearch = n
				return n, 0, false, nil
			}
			n = l
			continue
		}
		if t.compare(key, n.last()) > 0 {
			r, err := t.rightOf(n)
			if err != nil {
				return nil, 0, false, err
			}
			if r == nil {
				t.lastSearch = n
				return n, n.size(), false, nil
			}
			n = r
			continue
		}
		return t.found(n, key)
	}
}

func (t *Tree[K, V]) found(n *node[K, V], key K) (*node[K, V], int, bool, error) {
	idx, ok := n.search(t.compare, key)
	t.lastSearch = n
	return n, idx, ok, nil
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// search is locate with low-memory recovery: every ErrLowMemory triggers a
// forced optimization and, from the second attempt on, a linear backoff.
func (t *Tree[K, V]) search(key K) (*node[K, V], int, bool, error) {
	if t.deleted {
		return nil, 0, false, ErrTreeDeleted
	}
	for attempt := 0; ; attempt++ {
		n, idx, ok, err := t.locate(key)
		if !errors.Is(err, ErrLowMemory) {
			return n, idx, ok, err
		}
		if attempt >= t.settings.MaxRetries {
			return nil, 0, false, errors.Wrapf(err, "search abandoned after %d retries", attempt)
		}
		t.stats.lowMemoryRetries++
		t.log.Warn("low memory during search, optimizing",
			"attempt", attempt+1,
			"resident", t.liveCount())
		if _, err := t.optimizeLocked(true); err != nil {
			return nil, 0, false, err
		}
		t.pause(t.settings.RetryBackoff * time.Duration(attempt))
	}
}
