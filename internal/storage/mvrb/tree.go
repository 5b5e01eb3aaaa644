package mvrb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/mvrbtree/internal/logging"
	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// Entry is a key/value pair of the tree.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Options configures a tree.
type Options struct {
	// Logger receives tree events. Defaults to a no-op logger.
	Logger logging.Logger
	// Settings supplies the tunables. Defaults to DefaultSettings.
	Settings SettingsSource
}

// Tree is a persistent paged red-black tree.
type Tree[K, V any] struct {
	mu sync.Mutex

	store   storage.RecordStore
	compare func(a, b K) int
	codec   codec[K, V]
	log     logging.Logger
	baseLog logging.Logger

	source         SettingsSource
	settings       Settings
	budgetOverride int

	header      treeHeader
	headerRID   storage.RID
	headerDirty bool

	root        *node[K, V]
	cache       *nodeCache[K, V]
	entryPoints *entryPoints[K, V]
	dirty       map[*node[K, V]]struct{}
	doomed      []storage.RID
	transient   int
	lastSearch  *node[K, V]

	// -1 running, 0 idle, >0 low-memory signal level
	optimization atomic.Int32
	insertions   int
	modCount     uint64
	broken       error
	deleted      bool
	pause        func(time.Duration)

	stats counters
}

type counters struct {
	loads            uint64
	evictions        uint64
	optimizations    uint64
	nodesWritten     uint64
	lowMemoryRetries uint64
}

// New creates an empty tree. Nothing is written until the first commit,
// which also creates the tree header record (see HeaderRID).
func New[K, V any](store storage.RecordStore, compare func(a, b K) int, opts Options) (*Tree[K, V], error) {
	t, err := newTree[K, V](store, compare, opts)
	if err != nil {
		return nil, err
	}
	t.header = treeHeader{id: uuid.New(), pageCapacity: uint32(t.settings.PageCapacity)}
	t.headerDirty = true
	t.log = t.baseLog.WithFields("tree", t.header.id.String())
	return t, nil
}

// Open loads the tree whose header is stored in headerRID.
func Open[K, V any](store storage.RecordStore, headerRID storage.RID, compare func(a, b K) int, opts Options) (*Tree[K, V], error) {
	if !headerRID.IsValid() {
		return nil, errors.Wrap(storage.ErrInvalidRID, "open tree")
	}
	t, err := newTree[K, V](store, compare, opts)
	if err != nil {
		return nil, err
	}
	t.headerRID = headerRID
	if err := t.loadLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func newTree[K, V any](store storage.RecordStore, compare func(a, b K) int, opts Options) (*Tree[K, V], error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if compare == nil {
		return nil, ErrNilCompare
	}
	c, err := newCodec[K, V]()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Settings == nil {
		opts.Settings = StaticSettings(DefaultSettings())
	}
	t := &Tree[K, V]{
		store:       store,
		compare:     compare,
		codec:       c,
		baseLog:     opts.Logger.Named("mvrb"),
		source:      opts.Settings,
		cache:       newNodeCache[K, V](),
		entryPoints: newEntryPoints[K, V](compare),
		dirty:       make(map[*node[K, V]]struct{}),
		pause:       sleep,
	}
	t.log = t.baseLog
	t.settings = t.source.TreeSettings().normalized()
	return t, nil
}

// HeaderRID returns the RID of the tree header record, or InvalidRID
// before the first commit.
func (t *Tree[K, V]) HeaderRID() storage.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headerRID
}

// ID returns the tree identifier stored in the header.
func (t *Tree[K, V]) ID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.id
}

// Size returns the number of entries.
func (t *Tree[K, V]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.header.size)
}

// Load reads the header and the root node from storage, discarding the
// in-memory state. Loading an unmodified tree again yields the same tree.
func (t *Tree[K, V]) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()
}

func (t *Tree[K, V]) loadLocked() error {
	if t.deleted {
		return ErrTreeDeleted
	}
	t.resetMemory()
	t.broken = nil
	t.insertions = 0
	if !t.headerRID.IsValid() {
		t.header.root = storage.InvalidRID
		t.header.size = 0
		t.headerDirty = true
		return nil
	}

	data, err := t.store.Read(t.headerRID)
	if err != nil {
		return &StorageError{Op: "read tree header", RID: t.headerRID, Err: err}
	}
	h, err := unmarshalTreeHeader(t.headerRID, data)
	if err != nil {
		return err
	}
	t.header = h
	t.headerDirty = false
	t.log = t.baseLog.WithFields("tree", h.id.String())
	t.refreshSettings()

	if h.root.IsValid() {
		root, err := t.loadNode(h.root)
		if err != nil {
			return err
		}
		if root.parent.rid.IsValid() {
			return corrupt(root.rid, "root has parent %s", root.parent.rid)
		}
		t.root = root
	}
	t.log.Debug("tree loaded", "header", t.headerRID, "root", h.root, "size", h.size)
	return nil
}

// Unload discards every in-memory node, including uncommitted changes, and
// reloads the root from storage. Records of nodes removed since the last
// commit are kept.
func (t *Tree[K, V]) Unload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := len(t.dirty)
	if err := t.loadLocked(); err != nil {
		return err
	}
	if dropped > 0 {
		t.log.Warn("unload discarded uncommitted nodes", "count", dropped)
	}
	return nil
}

// resetMemory forgets every resident node. Outstanding iterators notice
// through modCount.
func (t *Tree[K, V]) resetMemory() {
	forget := func(n *node[K, V]) {
		n.evicted = true
		n.detach()
	}
	t.cache.each(forget)
	for n := range t.dirty {
		forget(n)
		n.dirty = false
	}
	t.cache.clear()
	t.entryPoints.clear()
	t.dirty = make(map[*node[K, V]]struct{})
	t.doomed = nil
	t.transient = 0
	t.root = nil
	t.lastSearch = nil
	t.modCount++
}

func (t *Tree[K, V]) refreshSettings() {
	s := t.source.TreeSettings().normalized()
	if t.budgetOverride > 0 {
		s.EntryPointBudget = t.budgetOverride
	}
	t.settings = s
	if t.header.pageCapacity != uint32(s.PageCapacity) {
		t.header.pageCapacity = uint32(s.PageCapacity)
		t.headerDirty = true
	}
}

// EntryPointBudget returns the number of entry points kept by optimizations.
func (t *Tree[K, V]) EntryPointBudget() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings.EntryPointBudget
}

// SetEntryPointBudget overrides the budget of the settings source.
// Zero restores it.
func (t *Tree[K, V]) SetEntryPointBudget(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 2 && n != 0 {
		n = 2
	}
	t.budgetOverride = n
	t.refreshSettings()
}

// liveCount is the number of resident nodes.
func (t *Tree[K, V]) liveCount() int {
	return t.cache.len() + t.transient
}

func (t *Tree[K, V]) usable() error {
	if t.deleted {
		return ErrTreeDeleted
	}
	if t.broken != nil {
		return errors.Wrapf(ErrCorrupted, "unload required after failed rebalance: %v", t.broken)
	}
	return nil
}
