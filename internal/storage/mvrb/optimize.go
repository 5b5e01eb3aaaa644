package mvrb

import "time"

const optimizationRunning int32 = -1

// SetOptimization raises (level > 0) or clears (level 0) the low-memory
// signal. While the signal is raised searches fail internally with
// ErrLowMemory and the next operation runs a full optimization. Calls made
// while an optimization is running are ignored.
func (t *Tree[K, V]) SetOptimization(level int) {
	if level < 0 {
		level = 0
	}
	for {
		cur := t.optimization.Load()
		if cur == optimizationRunning {
			return
		}
		if t.optimization.CompareAndSwap(cur, int32(level)) {
			return
		}
	}
}

// Optimization returns the signal level, or -1 while an optimization runs.
func (t *Tree[K, V]) Optimization() int {
	return int(t.optimization.Load())
}

// Optimize shrinks the resident set to the entry-point budget and returns
// the number of evicted nodes. Without force it only acts when the
// low-memory signal is raised or the resident set outgrew the budget
// scaled by the load factor.
func (t *Tree[K, V]) Optimize(force bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.optimizeLocked(force)
}

func (t *Tree[K, V]) optimizeLocked(force bool) (int, error) {
	var signal int32
	for {
		signal = t.optimization.Load()
		if signal == optimizationRunning {
			return 0, nil
		}
		if t.optimization.CompareAndSwap(signal, optimizationRunning) {
			break
		}
	}
	defer t.optimization.Store(0)

	if t.root == nil {
		return 0, nil
	}
	if t.entryPoints.len() == 0 {
		t.entryPoints.add(t.root)
	}
	t.refreshSettings()

	budget := t.settings.EntryPointBudget
	live := t.liveCount()
	if !force && signal == 0 && float64(live) < float64(budget)*t.settings.EntryPointLoadFactor {
		return 0, nil
	}
	if live <= budget {
		return 0, nil
	}

	start := time.Now()
	mru := t.lastSearch
	if mru != nil && !mru.live() {
		mru = nil
		t.lastSearch = nil
	}

	// Keep every distance-th entry point, then trim to the budget, which
	// also has to hold the root and the node of the last search.
	distance := live/budget + 1
	reserved := 1
	if mru != nil && mru != t.root {
		reserved++
	}
	var kept, dropped []*node[K, V]
	counter := 0
	t.entryPoints.ascend(func(n *node[K, V]) bool {
		if n == t.root || n == mru {
			return true
		}
		counter++
		if counter%distance == 0 {
			kept = append(kept, n)
		} else {
			dropped = append(dropped, n)
		}
		return true
	})
	for len(kept) > 0 && len(kept)+reserved > budget {
		dropped = append(dropped, kept[len(kept)-1])
		kept = kept[:len(kept)-1]
	}

	for _, n := range dropped {
		t.entryPoints.remove(n)
	}
	t.entryPoints.add(t.root)
	if mru != nil {
		t.entryPoints.add(mru)
	}

	evicted := 0
	for _, n := range dropped {
		evicted += t.disconnect(n)
	}
	if evicted > 0 {
		t.modCount++
	}
	t.stats.optimizations++
	t.stats.evictions += uint64(evicted)

	t.log.Debug("optimization done",
		"forced", force,
		"signal", signal,
		"resident_before", live,
		"resident_after", t.liveCount(),
		"entry_points", t.entryPoints.len(),
		"evicted", evicted,
		"duration", time.Since(start))
	return evicted, nil
}

// pinned reports whether n must stay resident: it is an entry point, the
// root, the node of the last search, or has changes not yet written.
func (t *Tree[K, V]) pinned(n *node[K, V]) bool {
	return n == t.root || n == t.lastSearch || n.epRegistered || n.dirty || !n.rid.IsValid()
}

// disconnect evicts the region of resident nodes reachable from start
// without crossing a pinned node. Links from pinned nodes into the region
// become unresolved and are reloaded on demand.
func (t *Tree[K, V]) disconnect(start *node[K, V]) int {
	if !start.live() || t.pinned(start) {
		return 0
	}
	region := []*node[K, V]{start}
	seen := map[*node[K, V]]bool{start: true}
	for i := 0; i < len(region); i++ {
		for _, l := range region[i].links() {
			nb := l.node
			if nb == nil || seen[nb] || t.pinned(nb) {
				continue
			}
			seen[nb] = true
			region = append(region, nb)
		}
	}
	for _, n := range region {
		for _, l := range n.links() {
			if nb := l.node; nb != nil && !seen[nb] {
				nb.unlinkFrom(n)
			}
		}
		n.detach()
		t.cache.remove(n)
		t.entryPoints.remove(n)
		n.evicted = true
	}
	return len(region)
}
