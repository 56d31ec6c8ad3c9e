package mvcc

import (
	"sync"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	"github.com/rs/zerolog"
)

// MasterPointer is one version of a document: the body plus the
// transaction ids that made it visible (From) and superseded it (To).
// To == NoTransactionID means the version is still current.
type MasterPointer struct {
	Key        string
	Body       []byte
	RevisionID uint64
	From       TransactionID
	To         TransactionID

	slot int32 // index into the manager's arena; sentinelIndex once recycled
	prev int32
	next int32
}

// Slot returns the arena index backing this record; indexes that key
// on identity rather than value use this rather than a pointer.
func (mp *MasterPointer) Slot() int32 { return mp.slot }

const (
	sentinelIndex    = -1
	blockBaseDefault = 128
	blockCapDefault  = 32768
)

type arenaSlot struct {
	mp       MasterPointer
	inUse    bool
	nextFree int32
}

// MasterpointerManager pool-allocates master pointers for one
// collection and links committed versions into a doubly linked
// publication list, per spec section 4.2. The publication list and
// free list are expressed as an arena (growing block vector) plus
// integer indices rather than pointers, per the "pointer-rich linked
// structures" redesign note: the free list is a single head index with
// "next free" stored in the unused slot, and the publication list's
// prev/next fields are indices into the same arena. Iterators capture
// a snapshot of the list order under the manager's mutex and tolerate
// concurrent unlinks because unlinked records are not recycled while
// any iterator is outstanding.
type MasterpointerManager struct {
	mu         sync.Mutex
	collection string
	blockBase  int
	blockCap   int

	blocks   [][]arenaSlot
	freeHead int32

	head, tail int32
	liveCount  int

	activeIterators int
	pendingRecycle  map[int32]struct{}

	logger zerolog.Logger
}

// NewMasterpointerManager creates a manager for collection, using
// blockBase/blockCap as the block-size growth curve min(blockBase<<N,
// blockCap). Zero values fall back to the defaults named in spec
// section 4.2.
func NewMasterpointerManager(collection string, blockBase, blockCap int) *MasterpointerManager {
	if blockBase <= 0 {
		blockBase = blockBaseDefault
	}
	if blockCap <= 0 {
		blockCap = blockCapDefault
	}
	return &MasterpointerManager{
		collection:     collection,
		blockBase:      blockBase,
		blockCap:       blockCap,
		freeHead:       sentinelIndex,
		head:           sentinelIndex,
		tail:           sentinelIndex,
		pendingRecycle: make(map[int32]struct{}),
		logger:         log.WithComponent("masterpointer"),
	}
}

// Container owns a newly allocated, unlinked MasterPointer. Release
// recycles the record unless Link was called on it; callers that
// decide not to publish a created record must call Release (typically
// via defer) to return the slot to the free list — Go has no
// destructors, so this stands in for the source's RAII container.
type Container struct {
	mgr    *MasterpointerManager
	mp     *MasterPointer
	linked bool
}

// MasterPointer returns the record the container owns.
func (c *Container) MasterPointer() *MasterPointer { return c.mp }

// Link publishes the record at the tail of the publication list.
func (c *Container) Link() {
	c.mgr.link(c.mp)
	c.linked = true
}

// Release recycles the record if Link was never called.
func (c *Container) Release() {
	if !c.linked {
		c.mgr.recycleUnlinked(c.mp.slot)
	}
}

// Create reserves a master pointer from the free list (allocating a
// new block if necessary), initializes it with body/key/revision, sets
// From = tid and To = NoTransactionID, and leaves it unlinked.
func (m *MasterpointerManager) Create(key string, body []byte, revisionID uint64, tid TransactionID) *Container {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.allocateLocked()
	slot := m.slotAt(idx)
	slot.mp = MasterPointer{
		Key:        key,
		Body:       body,
		RevisionID: revisionID,
		From:       tid,
		To:         NoTransactionID,
		slot:       idx,
		prev:       sentinelIndex,
		next:       sentinelIndex,
	}
	slot.inUse = true

	return &Container{mgr: m, mp: &slot.mp}
}

// allocateLocked pops a slot off the free list, growing the arena with
// a new block sized min(blockBase<<N, blockCap) if the free list is
// empty. Must be called with m.mu held.
func (m *MasterpointerManager) allocateLocked() int32 {
	if m.freeHead == sentinelIndex {
		m.growLocked()
	}

	idx := m.freeHead
	slot := m.slotAt(idx)
	m.freeHead = slot.nextFree
	slot.nextFree = sentinelIndex
	return idx
}

func (m *MasterpointerManager) growLocked() {
	n := len(m.blocks)
	size := m.blockBase << uint(n)
	if size > m.blockCap || size <= 0 {
		size = m.blockCap
	}

	base := m.baseIndex(n)
	block := make([]arenaSlot, size)
	for i := range block {
		globalIdx := base + i
		if i == size-1 {
			block[i].nextFree = sentinelIndex
		} else {
			block[i].nextFree = int32(globalIdx + 1)
		}
	}
	m.blocks = append(m.blocks, block)
	m.freeHead = int32(base)

	metrics.MasterpointerBlocksTotal.WithLabelValues(m.collection).Set(float64(len(m.blocks)))
	m.logger.Debug().Str("collection", m.collection).Int("block", n).Int("size", size).Msg("arena block allocated")
}

// baseIndex returns the global index of block N's first slot, given
// the block sizes already allocated (blocks 0..N-1).
func (m *MasterpointerManager) baseIndex(blockN int) int {
	base := 0
	for i := 0; i < blockN; i++ {
		size := m.blockBase << uint(i)
		if size > m.blockCap || size <= 0 {
			size = m.blockCap
		}
		base += size
	}
	return base
}

func (m *MasterpointerManager) slotAt(idx int32) *arenaSlot {
	remaining := int(idx)
	for i, block := range m.blocks {
		if remaining < len(block) {
			return &m.blocks[i][remaining]
		}
		remaining -= len(block)
	}
	panic("mvcc: masterpointer index out of range")
}

// link atomically inserts mp at the tail of the publication list. Must
// be called after the primary index has accepted the record. Calling
// twice on the same record is a contract violation, same as the
// source.
func (m *MasterpointerManager) link(mp *MasterPointer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp.prev = m.tail
	mp.next = sentinelIndex

	if m.tail != sentinelIndex {
		m.slotAt(m.tail).mp.next = mp.slot
	} else {
		m.head = mp.slot
	}
	m.tail = mp.slot
	m.liveCount++

	metrics.MasterpointersActive.WithLabelValues(m.collection).Set(float64(m.liveCount))
}

// Unlink atomically removes mp from the publication list. The slot is
// marked for deferred recycling: actual recycling waits until no
// iterator that may have observed mp is still outstanding.
func (m *MasterpointerManager) Unlink(mp *MasterPointer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlinkLocked(mp)
}

func (m *MasterpointerManager) unlinkLocked(mp *MasterPointer) {
	if mp.prev != sentinelIndex {
		m.slotAt(mp.prev).mp.next = mp.next
	} else {
		m.head = mp.next
	}
	if mp.next != sentinelIndex {
		m.slotAt(mp.next).mp.prev = mp.prev
	} else {
		m.tail = mp.prev
	}
	mp.prev, mp.next = sentinelIndex, sentinelIndex
	m.liveCount--
	metrics.MasterpointersActive.WithLabelValues(m.collection).Set(float64(m.liveCount))

	if m.activeIterators > 0 {
		m.pendingRecycle[mp.slot] = struct{}{}
		return
	}
	m.recycleLocked(mp.slot)
}

// recycleUnlinked recycles a slot that was never linked (a created-
// but-not-committed record whose Container was released).
func (m *MasterpointerManager) recycleUnlinked(idx int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recycleLocked(idx)
}

// recycleLocked returns idx to the free list. Precondition: unlinked
// and not observable by any outstanding iterator.
func (m *MasterpointerManager) recycleLocked(idx int32) {
	slot := m.slotAt(idx)
	slot.mp = MasterPointer{slot: sentinelIndex}
	slot.inUse = false
	slot.nextFree = m.freeHead
	m.freeHead = idx
	delete(m.pendingRecycle, idx)
}

// releaseIteratorLocked decrements the active-iterator count and, once
// it reaches zero, recycles every slot unlinked during the iteration.
func (m *MasterpointerManager) releaseIteratorLocked() {
	m.activeIterators--
	if m.activeIterators > 0 {
		return
	}
	for idx := range m.pendingRecycle {
		m.recycleLocked(idx)
	}
}

// LiveCount returns the number of currently linked master pointers.
func (m *MasterpointerManager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveCount
}

// BlockCount returns the number of arena blocks allocated so far.
func (m *MasterpointerManager) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// VisibilityPredicate reports whether a master pointer with the given
// from/to transaction ids should be visible to the iterating
// transaction.
type VisibilityPredicate func(from, to TransactionID) bool

// Iterator walks the publication list, in forward (insertion) or
// reverse order, yielding only records the predicate accepts. It
// captures the slot order as a snapshot of indices (not values) so
// that the pointers it yields remain identical to the ones every index
// holds, while still tolerating concurrent unlinks: a record crossed
// by an outstanding iterator is never recycled out from under it.
type Iterator struct {
	mgr       *MasterpointerManager
	indices   []int32
	pos       int
	reverse   bool
	predicate VisibilityPredicate
	closed    bool
}

// NewIterator captures a snapshot of the publication list's order
// under the manager's mutex and registers it as an active iterator,
// deferring recycling of any record it crosses until Close.
func (m *MasterpointerManager) NewIterator(predicate VisibilityPredicate, reverse bool) *Iterator {
	m.mu.Lock()
	defer m.mu.Unlock()

	indices := make([]int32, 0, m.liveCount)
	for idx := m.head; idx != sentinelIndex; idx = m.slotAt(idx).mp.next {
		indices = append(indices, idx)
	}
	if reverse {
		for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
			indices[i], indices[j] = indices[j], indices[i]
		}
	}

	m.activeIterators++

	return &Iterator{mgr: m, indices: indices, reverse: reverse, predicate: predicate}
}

// Next advances to the next predicate-accepting record, or returns
// (nil, false) once exhausted. The returned pointer is the live arena
// record, the same one every index holds, so callers can pass it to
// Forget/Unlink and have them recognize it by identity.
func (it *Iterator) Next() (*MasterPointer, bool) {
	it.mgr.mu.Lock()
	defer it.mgr.mu.Unlock()
	for it.pos < len(it.indices) {
		idx := it.indices[it.pos]
		it.pos++
		slot := it.mgr.slotAt(idx)
		if !slot.inUse {
			continue
		}
		mp := &slot.mp
		if it.predicate == nil || it.predicate(mp.From, mp.To) {
			return mp, true
		}
	}
	return nil, false
}

// Close releases the iterator's hold on deferred recycling. Safe to
// call more than once.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.mgr.mu.Lock()
	defer it.mgr.mu.Unlock()
	it.mgr.releaseIteratorLocked()
}
