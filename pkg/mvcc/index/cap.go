package index

import (
	"github.com/docstore/engine/pkg/metrics"
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/wal"
)

// RemoveStatsRecorder is the subset of *collection.DocumentCollection's
// surface a CapConstraint needs to fold an eviction into the owning
// collection's live document accounting, declared locally so this
// package need not import pkg/collection (which already imports this
// package to build a collection's index vector).
type RemoveStatsRecorder interface {
	RecordRemoveStats(size int64)
}

// CapConstraint bounds a collection's live document count and/or total
// byte size, per spec.md §4.3.7. It always sits last in a collection's
// index list. PreCommit evicts the oldest master pointers (the head of
// the manager's publication list) until both bounds hold again, each
// eviction routed through the standard remove path so it is itself a
// tombstone deletion rather than a silent drop: every sibling index
// forgets the entry, the owning collection's stats are decremented,
// and a DocumentRemove marker is appended to the WAL so replay
// reconstructs the eviction instead of seeing a document that was
// quietly dropped.
type CapConstraint struct {
	base

	maxCount    int
	maxByteSize int64

	mgr     *mvcc.MasterpointerManager
	indexes []mvcc.Index

	walLog         wal.Log
	vocbaseID      mvcc.VocbaseID
	collectionName string
	stats          RemoveStatsRecorder

	count    int
	byteSize int64
}

// NewCapConstraint creates a CapConstraint with id idx bounding
// collection through mgr, evicting via the sibling indexes (every
// other index on the same collection, so eviction removes the entry
// everywhere, not just here). Zero maxCount or maxByteSize disables
// that bound. walLog/vocbaseID/collectionName/stats are used only to
// record an eviction through the standard remove path in PreCommit; a
// nil walLog or stats recorder skips that side effect (tests that
// don't care about replay or collection-level stats may pass nil).
func NewCapConstraint(idx uint64, maxCount int, maxByteSize int64, mgr *mvcc.MasterpointerManager, indexes []mvcc.Index, walLog wal.Log, vocbaseID mvcc.VocbaseID, collectionName string, stats RemoveStatsRecorder) *CapConstraint {
	return &CapConstraint{
		base: base{
			id:       idx,
			typeName: "cap",
			unique:   false,
			sparse:   false,
		},
		maxCount:       maxCount,
		maxByteSize:    maxByteSize,
		mgr:            mgr,
		indexes:        indexes,
		walLog:         walLog,
		vocbaseID:      vocbaseID,
		collectionName: collectionName,
		stats:          stats,
	}
}

// Insert rejects a single document that alone exceeds maxByteSize
// before any storage mutation, per spec.md §4.3.7. Otherwise it just
// accounts for the new document; eviction of older documents to
// restore the aggregate bound happens in PreCommit.
func (c *CapConstraint) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	if c.maxByteSize > 0 && int64(len(mp.Body)) > c.maxByteSize {
		return mvcc.ErrDocumentTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.byteSize += int64(len(mp.Body))
	return nil
}

func (c *CapConstraint) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count--
	c.byteSize -= int64(len(mp.Body))
	return nil
}

func (c *CapConstraint) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	return c.Remove(tx, mp)
}

// PreCommit evicts oldest-first (the manager's publication-list head)
// until both the count and byte-size bounds hold, forgetting each
// eviction through every sibling index and unlinking it from the
// master pointer manager.
func (c *CapConstraint) PreCommit(tx *mvcc.Transaction) error {
	c.mu.Lock()
	over := func() bool {
		return (c.maxCount > 0 && c.count > c.maxCount) ||
			(c.maxByteSize > 0 && c.byteSize > c.maxByteSize)
	}
	needsEviction := over()
	c.mu.Unlock()
	if !needsEviction {
		return nil
	}

	it := c.mgr.NewIterator(func(from, to mvcc.TransactionID) bool { return !to.IsSet() }, false)
	defer it.Close()

	for {
		c.mu.Lock()
		done := !over()
		c.mu.Unlock()
		if done {
			return nil
		}

		mp, ok := it.Next()
		if !ok {
			return nil
		}

		for _, idx := range c.indexes {
			_ = idx.Forget(tx, mp)
		}
		c.mgr.Unlink(mp)

		if c.walLog != nil {
			if _, err := c.walLog.Append(wal.Marker{
				Kind:         wal.DocumentRemove,
				VocbaseID:    string(c.vocbaseID),
				CollectionID: c.collectionName,
				Tx:           wal.TxID{Own: tx.ID().Own, Top: tx.ID().Top},
				Key:          mp.Key,
				RevisionID:   mp.RevisionID,
			}); err != nil {
				return err
			}
		}
		if c.stats != nil {
			c.stats.RecordRemoveStats(int64(len(mp.Body)))
		}
		metrics.CapConstraintEvictionsTotal.WithLabelValues(c.collectionName).Inc()

		c.mu.Lock()
		c.count--
		c.byteSize -= int64(len(mp.Body))
		c.mu.Unlock()
	}
}

func (c *CapConstraint) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":          c.id,
		"type":        c.typeName,
		"maxCount":    c.maxCount,
		"maxByteSize": c.maxByteSize,
	}
}

func (c *CapConstraint) Memory() int {
	return 0
}
