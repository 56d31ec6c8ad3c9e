package collection

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	"github.com/docstore/engine/pkg/mvcc"
	mvccindex "github.com/docstore/engine/pkg/mvcc/index"
	"github.com/docstore/engine/pkg/shape"
	"github.com/rs/zerolog"
)

// DocumentCollection owns one collection's index vector, master
// pointer manager, key generator, shape state, and statistics, per
// spec.md §4.8. It is the concrete type behind mvcc.CollectionHandle:
// a transaction binds to it by name through pkg/vocbase's registry, and
// never otherwise reaches into pkg/collection.
type DocumentCollection struct {
	id   uint64
	name string

	// indexMu is the index-vector read/write lock named in spec.md §5's
	// canonical lock order (item 2): enumeration (Indexes, RLock/RUnlock
	// via CollectionHandle) takes the read side, addIndex/unlinkIndex/
	// dropIndex take the write side. A transaction's own collection-level
	// lock (CollectionHandle.Lock/RLock, taken by TransactionCollection)
	// reuses the same mutex: a write transaction may add indexes as part
	// of its work, so the two concerns share one lock rather than risking
	// acquiring two different locks in inconsistent order.
	indexMu sync.RWMutex
	indexes []mvcc.Index

	mgr    *mvcc.MasterpointerManager
	keys   mvcc.KeyGenerator
	shapes shape.Service

	statsMu       sync.RWMutex
	documentCount int64
	documentSize  int64
	revisionID    uint64
	datafiles     map[uint32]*DatafileStats

	logger zerolog.Logger
}

// NewDocumentCollection creates a collection named name with id idx, a
// fresh MasterpointerManager sized by blockBase/blockCap (zero values
// fall back to spec.md §4.2's defaults), and a PrimaryIndex already
// installed as its first index, per spec.md §4.3.1.
func NewDocumentCollection(idx uint64, name string, blockBase, blockCap int, shapes shape.Service, keys mvcc.KeyGenerator) *DocumentCollection {
	c := &DocumentCollection{
		id:        idx,
		name:      name,
		mgr:       mvcc.NewMasterpointerManager(name, blockBase, blockCap),
		keys:      keys,
		shapes:    shapes,
		datafiles: make(map[uint32]*DatafileStats),
		logger:    log.WithComponent("collection"),
	}
	c.indexes = []mvcc.Index{mvccindex.NewPrimaryIndex(1, shapes)}
	return c
}

// ID returns the collection's stable identifier.
func (c *DocumentCollection) ID() uint64 { return c.id }

// Name returns the collection's name.
func (c *DocumentCollection) Name() string { return c.name }

// MasterpointerManager returns the collection's master pointer manager.
func (c *DocumentCollection) MasterpointerManager() *mvcc.MasterpointerManager {
	return c.mgr
}

// KeyGenerator returns the collection's document key generator.
func (c *DocumentCollection) KeyGenerator() mvcc.KeyGenerator { return c.keys }

// Shapes returns the collection's shape service.
func (c *DocumentCollection) Shapes() shape.Service { return c.shapes }

// Indexes returns a snapshot of the index vector in order.
func (c *DocumentCollection) Indexes() []mvcc.Index {
	c.indexMu.RLock()
	defer c.indexMu.RUnlock()
	out := make([]mvcc.Index, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// Lock/Unlock/RLock/RUnlock satisfy mvcc.CollectionHandle: they guard
// the same index-vector lock addIndex/unlinkIndex/dropIndex use.
func (c *DocumentCollection) Lock()    { c.indexMu.Lock() }
func (c *DocumentCollection) Unlock()  { c.indexMu.Unlock() }
func (c *DocumentCollection) RLock()   { c.indexMu.RLock() }
func (c *DocumentCollection) RUnlock() { c.indexMu.RUnlock() }

// primaryIndex returns the collection's always-present primary index.
// Panics if index 0 is ever anything else, which would be an addIndex
// invariant violation.
func (c *DocumentCollection) primaryIndex() *mvccindex.PrimaryIndex {
	c.indexMu.RLock()
	defer c.indexMu.RUnlock()
	return c.indexes[0].(*mvccindex.PrimaryIndex)
}

// indexReadLock takes c's index-vector read lock and returns a closure
// that releases it, ported from the original's IndexesReadLocker RAII
// guard (spec.md §9's "exception-driven rollback -> explicit scope
// guard" redesign note).
func indexReadLock(c *DocumentCollection) func() {
	c.RLock()
	return c.RUnlock
}

// indexWriteLock takes c's index-vector write lock and returns a
// closure that releases it, ported from the original's
// IndexesWriteLocker RAII guard.
func indexWriteLock(c *DocumentCollection) func() {
	c.Lock()
	return c.Unlock
}

// addIndex appends idx to the index vector, preserving the invariant
// that primary/edge indexes stay first and a cap constraint stays
// last, per spec.md §4.8.
func (c *DocumentCollection) addIndex(idx mvcc.Index) {
	unlock := indexWriteLock(c)
	defer unlock()
	c.indexes = insertPreservingOrder(c.indexes, idx)
	metrics.IndexEntriesTotal.WithLabelValues(c.name, idx.TypeName()).Set(float64(idx.Memory()))
}

func insertPreservingOrder(indexes []mvcc.Index, idx mvcc.Index) []mvcc.Index {
	if _, isCap := idx.(*mvccindex.CapConstraint); isCap {
		return append(indexes, idx)
	}

	end := len(indexes)
	if end > 0 {
		if _, lastIsCap := indexes[end-1].(*mvccindex.CapConstraint); lastIsCap {
			end--
		}
	}

	insertAt := end
	if isPrimaryOrEdge(idx) {
		insertAt = 0
		for insertAt < end && isPrimaryOrEdge(indexes[insertAt]) {
			insertAt++
		}
	}

	out := make([]mvcc.Index, 0, len(indexes)+1)
	out = append(out, indexes[:insertAt]...)
	out = append(out, idx)
	out = append(out, indexes[insertAt:]...)
	return out
}

func isPrimaryOrEdge(idx mvcc.Index) bool {
	switch idx.(type) {
	case *mvccindex.PrimaryIndex, *mvccindex.EdgeIndex:
		return true
	default:
		return false
	}
}

// unlinkIndex removes the index with id idx from the vector and
// returns it, without discarding anything else about it. Used when an
// index is being replaced rather than permanently dropped.
func (c *DocumentCollection) unlinkIndex(idx uint64) (mvcc.Index, bool) {
	unlock := indexWriteLock(c)
	defer unlock()
	for i, ix := range c.indexes {
		if ix.ID() == idx {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			return ix, true
		}
	}
	return nil, false
}

// dropIndex unlinks the index with id idx and discards it permanently.
func (c *DocumentCollection) dropIndex(idx uint64) bool {
	removed, ok := c.unlinkIndex(idx)
	if ok {
		c.logger.Info().Uint64("index", idx).Str("collection", c.name).Str("type", removed.TypeName()).Msg("index dropped")
	}
	return ok
}

// fillIndex iterates every currently live master pointer (To unset) in
// insertion order and inserts each into idx, per spec.md §4.8.
func (c *DocumentCollection) fillIndex(tx *mvcc.Transaction, idx mvcc.Index) error {
	start := time.Now()
	predicate := func(from, to mvcc.TransactionID) bool { return !to.IsSet() }

	it := c.mgr.NewIterator(predicate, false)
	defer it.Close()

	for {
		mp, ok := it.Next()
		if !ok {
			break
		}
		if err := idx.Insert(tx, mp); err != nil {
			return err
		}
	}

	metrics.IndexBuildDuration.WithLabelValues(idx.TypeName()).Observe(time.Since(start).Seconds())
	return nil
}

// FillIndexesParallel (re)populates every index in indexes by scanning
// the primary index's currently live master pointers, one goroutine per
// index joined by a shared barrier and an atomic result code, matching
// spec.md §4.8's "thread pool with one task per secondary index"
// description. The first error from any task wins; every other task
// still runs to completion rather than being cancelled.
func (c *DocumentCollection) FillIndexesParallel(tx *mvcc.Transaction, indexes []mvcc.Index) error {
	var wg sync.WaitGroup
	var failed atomic.Bool
	var firstErr atomic.Value

	for _, idx := range indexes {
		idx := idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.fillIndex(tx, idx); err != nil {
				if failed.CompareAndSwap(false, true) {
					firstErr.Store(err)
				}
			}
		}()
	}
	wg.Wait()

	if failed.Load() {
		return firstErr.Load().(error)
	}
	return nil
}

// DocumentCount returns the current live document count.
func (c *DocumentCollection) DocumentCount() int64 {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.documentCount
}

// DocumentSize returns the current total live document byte size.
func (c *DocumentCollection) DocumentSize() int64 {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.documentSize
}

// RevisionID returns the collection's highest observed revision id.
func (c *DocumentCollection) RevisionID() uint64 {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.revisionID
}

// UpdateRevisionID raises the collection's revision id if revisionID is
// higher than the current value, per the original's
// updateRevisionId semantics.
func (c *DocumentCollection) UpdateRevisionID(revisionID uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if revisionID > c.revisionID {
		c.revisionID = revisionID
	}
}

// RecordInsertStats folds a newly committed document's size into the
// collection's running totals. Called by the caller orchestrating a
// document insert after every index has accepted it.
func (c *DocumentCollection) RecordInsertStats(size int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.documentCount++
	c.documentSize += size
}

// RecordRemoveStats folds a committed document removal into the
// collection's running totals.
func (c *DocumentCollection) RecordRemoveStats(size int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.documentCount--
	c.documentSize -= size
}

// DatafileStats returns a copy of the accumulated statistics for
// datafile id, or ok == false if the collection has no record of it.
func (c *DocumentCollection) DatafileStats(id uint32) (DatafileStats, bool) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	st, ok := c.datafiles[id]
	if !ok {
		return DatafileStats{}, false
	}
	return *st, true
}
