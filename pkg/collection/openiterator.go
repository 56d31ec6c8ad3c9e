package collection

import (
	"time"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/wal"
	"github.com/rs/zerolog"
)

// openIteratorState is the reconstruction accumulator spec.md §4.7
// names: it runs once per collection at open, replaying every marker in
// WAL tick order against the collection's primary index and
// per-datafile statistics. It is discarded once Replay returns; only
// its effects on the owning DocumentCollection persist.
type openIteratorState struct {
	collection *DocumentCollection

	datafiles map[uint32]*DatafileStats
	// keyDatafile tracks the datafile id that produced the primary
	// index's current winner for a key, since MasterPointer itself
	// carries no datafile id — needed to mark the right datafile's
	// counters dead when a key is superseded or removed.
	keyDatafile map[string]uint32

	// open tracks transactions whose BeginTransaction marker has been
	// seen but not yet resolved by a matching Commit/Abort. pending
	// buffers each open transaction's Insert/Remove markers until that
	// resolution: an aborted transaction's writes must never reach the
	// index or stats, only committed ones, per spec.md §2's "its id is
	// tracked as aborted so later readers treat its writes as
	// invisible." A data marker whose transaction was never explicitly
	// begun (no Begin marker observed for its TxID) is applied
	// immediately, matching transactions written with NoBeginMarker/
	// SingleOperation hints.
	open    map[wal.TxID]bool
	pending map[wal.TxID][]wal.Marker

	documentCount int64
	documentSize  int64
	revisionID    uint64
	tickMax       uint64

	logger zerolog.Logger
}

func newOpenIteratorState(c *DocumentCollection) *openIteratorState {
	return &openIteratorState{
		collection:  c,
		datafiles:   make(map[uint32]*DatafileStats),
		keyDatafile: make(map[string]uint32),
		open:        make(map[wal.TxID]bool),
		pending:     make(map[wal.TxID][]wal.Marker),
		logger:      log.WithComponent("openiterator"),
	}
}

// Replay consumes every marker from markers in ascending tick order and
// reconstructs c's primary index and statistics, per spec.md §4.7. It
// returns the highest tick observed across every marker (data or
// structural), counting both marker ticks and transaction ids, which
// the caller seeds pkg/ticks.Service and
// mvcc.TransactionManager.SeedAfterReplay from.
func (c *DocumentCollection) Replay(markers wal.Iterator) (uint64, error) {
	start := time.Now()
	state := newOpenIteratorState(c)

	for {
		m, ok := markers.Next()
		if !ok {
			break
		}
		if err := state.apply(m); err != nil {
			return state.tickMax, err
		}
		metrics.ReplayMarkersTotal.Inc()
	}

	c.applyReplay(state)
	metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	state.logger.Info().
		Str("collection", c.name).
		Int64("documents", state.documentCount).
		Uint64("maxTick", state.tickMax).
		Msg("collection replay complete")

	return state.tickMax, nil
}

func (s *openIteratorState) apply(m wal.Marker) error {
	if m.Tick > s.tickMax {
		s.tickMax = m.Tick
	}
	if m.Tx.Own > s.tickMax {
		s.tickMax = m.Tx.Own
	}
	stats := s.datafileStats(m.DatafileID)
	stats.trackTick(m.Tick, m.IsDataMarker())

	switch m.Kind {
	case wal.BeginTransaction, wal.BeginRemoteTransaction:
		s.open[m.Tx] = true
	case wal.CommitTransaction, wal.CommitRemoteTransaction:
		return s.resolve(m.Tx, true)
	case wal.AbortTransaction, wal.AbortRemoteTransaction:
		return s.resolve(m.Tx, false)
	case wal.DocumentInsert, wal.EdgeInsert, wal.DocumentRemove:
		if s.open[m.Tx] {
			s.pending[m.Tx] = append(s.pending[m.Tx], m)
			return nil
		}
		return s.applyData(m)
	case wal.ShapeRegister:
		if _, err := s.collection.shapes.Register(m.Body); err != nil {
			return err
		}
		stats.NumberShapes++
	case wal.AttributeRegister:
		if _, err := s.collection.shapes.Register(m.Body); err != nil {
			return err
		}
		stats.NumberAttributes++
	default:
		// CreateIndex/DropIndex: structural markers, tick accounting
		// only (already applied above).
	}
	return nil
}

// resolve ends buffering for tid: on commit, every marker it
// accumulated is applied for real in the order it was logged; on
// abort, the buffer is simply dropped, so none of the transaction's
// Insert/Remove markers ever reach the primary index or live/dead
// stats, even though their tick range was already counted above.
func (s *openIteratorState) resolve(tid wal.TxID, committed bool) error {
	markers := s.pending[tid]
	delete(s.pending, tid)
	delete(s.open, tid)

	if !committed {
		return nil
	}
	for _, m := range markers {
		if err := s.applyData(m); err != nil {
			return err
		}
	}
	return nil
}

// applyData dispatches one resolved-as-committed (or never explicitly
// begun) Insert/Remove marker to its per-kind handler.
func (s *openIteratorState) applyData(m wal.Marker) error {
	stats := s.datafileStats(m.DatafileID)
	switch m.Kind {
	case wal.DocumentInsert, wal.EdgeInsert:
		s.applyInsert(m, stats)
	case wal.DocumentRemove:
		s.applyRemove(m, stats)
	}
	return nil
}

func (s *openIteratorState) datafileStats(id uint32) *DatafileStats {
	st, ok := s.datafiles[id]
	if !ok {
		st = newDatafileStats(id)
		s.datafiles[id] = st
	}
	return st
}

// applyInsert implements spec.md §4.7's DocumentInsert/EdgeInsert row:
// a new key publishes unconditionally; an existing key is superseded
// only if the incoming (revision, datafile) pair outranks the current
// winner, otherwise the incoming marker itself is dead on arrival.
func (s *openIteratorState) applyInsert(m wal.Marker, stats *DatafileStats) {
	primary := s.collection.primaryIndex()
	existing := primary.Lookup(m.Key)

	if len(existing) == 0 {
		s.publish(m, stats)
		return
	}

	cur := existing[0]
	curFid := s.keyDatafile[m.Key]
	if wins(m.RevisionID, m.DatafileID, cur.RevisionID, curFid) {
		s.retire(cur, curFid)
		s.publish(m, stats)
		return
	}

	stats.NumberDead++
	stats.SizeDead += int64(len(m.Body))
}

// applyRemove implements spec.md §4.7's DocumentRemove row.
func (s *openIteratorState) applyRemove(m wal.Marker, stats *DatafileStats) {
	primary := s.collection.primaryIndex()
	existing := primary.Lookup(m.Key)
	if len(existing) > 0 {
		cur := existing[0]
		fid := s.keyDatafile[m.Key]
		s.retire(cur, fid)
		primary.ReplayDelete(m.Key)
		delete(s.keyDatafile, m.Key)
	}
	stats.NumberDeletions++
}

// publish creates and links a new master pointer for m, installs it as
// the primary index's sole entry for m.Key, and bumps live counters.
func (s *openIteratorState) publish(m wal.Marker, stats *DatafileStats) {
	tid := mvcc.TransactionID{Own: m.Tx.Own, Top: m.Tx.Top}
	container := s.collection.mgr.Create(m.Key, m.Body, m.RevisionID, tid)
	container.Link()

	mp := container.MasterPointer()
	s.collection.primaryIndex().ReplaySet(m.Key, mp)
	s.keyDatafile[m.Key] = m.DatafileID

	stats.NumberAlive++
	stats.SizeAlive += int64(len(m.Body))
	s.documentCount++
	s.documentSize += int64(len(m.Body))
	if m.RevisionID > s.revisionID {
		s.revisionID = m.RevisionID
	}
}

// retire decrements live counters for mp in the datafile that produced
// it and marks it dead there, then unlinks it from the publication
// list. Called when a key is superseded by a newer revision or removed
// outright.
func (s *openIteratorState) retire(mp *mvcc.MasterPointer, fid uint32) {
	old := s.datafileStats(fid)
	old.NumberAlive--
	old.SizeAlive -= int64(len(mp.Body))
	old.NumberDead++
	old.SizeDead += int64(len(mp.Body))

	s.documentCount--
	s.documentSize -= int64(len(mp.Body))

	s.collection.mgr.Unlink(mp)
}

// wins reports whether the incoming (revision, datafile) pair outranks
// the existing one, per spec.md §4.7's "incoming (revision, fid) >
// existing" rule: revision is the primary key, datafile id breaks ties.
func wins(incomingRevision uint64, incomingFid uint32, existingRevision uint64, existingFid uint32) bool {
	if incomingRevision != existingRevision {
		return incomingRevision > existingRevision
	}
	return incomingFid > existingFid
}

// applyReplay folds a finished replay's accumulator into c's persistent
// statistics. Called once, after Replay's loop completes.
func (c *DocumentCollection) applyReplay(state *openIteratorState) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.documentCount += state.documentCount
	c.documentSize += state.documentSize
	if state.revisionID > c.revisionID {
		c.revisionID = state.revisionID
	}
	for id, st := range state.datafiles {
		c.datafiles[id] = st
	}
}
