package mvcc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	"github.com/docstore/engine/pkg/wal"
	"github.com/rs/zerolog"
)

// Status is a Transaction's position in its state machine:
// CREATED --begin--> ONGOING --commit--> COMMITTED
//
//	|
//	+--rollback/destroy--> ROLLED_BACK
type Status int

const (
	StatusCreated Status = iota
	StatusOngoing
	StatusCommitted
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusOngoing:
		return "ONGOING"
	case StatusCommitted:
		return "COMMITTED"
	case StatusRolledBack:
		return "ROLLED_BACK"
	default:
		return "CREATED"
	}
}

// Flags records lifecycle milestones a Transaction passes through.
type Flags uint8

const (
	FlagInitialized Flags = 1 << iota
	FlagBeginMarkerWritten
	FlagDataMarkerWritten
	FlagEndMarkerWritten
	FlagPushedOnThreadStack
)

func (f *Flags) set(flag Flags)      { *f |= flag }
func (f Flags) has(flag Flags) bool  { return f&flag != 0 }

// VocbaseID identifies the database a transaction is bound to.
// Transaction never dereferences it; it is used only for identity
// checks (TransactionScope fails Internal on a vocbase mismatch) and
// to route markers to the right WAL. The registry that resolves names
// to collections lives one layer up, in pkg/vocbase.
type VocbaseID string

// Hints mirror the "declared at begin" behavior flags in spec section
// 4.4.
type Hints struct {
	LockNever       bool
	LockEntirely    bool
	NoBeginMarker   bool
	NoAbortMarker   bool
	SingleOperation bool
	NoThrottling    bool
}

// CollectionAccess is READ or WRITE.
type CollectionAccess int

const (
	AccessRead CollectionAccess = iota
	AccessWrite
)

// CollectionDeclaration is one (name, handle, access) entry a caller
// declares when beginning a transaction. The handle must already be
// resolved (by the vocbase-level registry) since Transaction itself
// holds no registry reference.
type CollectionDeclaration struct {
	Name   string
	Handle CollectionHandle
	Access CollectionAccess
}

type subtransactionRecord struct {
	id     TransactionID
	status Status
}

// Transaction is one logical unit of work. It owns per-collection
// statistics and the subtransaction chain, and computes visibility
// against other transactions via its manager's status table.
type Transaction struct {
	mu sync.Mutex

	id        TransactionID
	vocbaseID VocbaseID
	manager   *TransactionManager
	startTime time.Time
	status    Status
	flags     Flags
	hints     Hints

	parent      *Transaction
	top         *Transaction // self, for a top-level transaction
	activeChild *Transaction

	// subtransactions is only ever appended to on the top-level
	// Transaction; it is the "ordered list of child subtransactions"
	// named in spec section 3, consulted by sibling visibility checks
	// regardless of nesting depth.
	subtransactions []subtransactionRecord

	collections map[string]*TransactionCollection
	stats       map[string]*CollectionStats

	killed atomic.Bool

	// concurrentAtStart is the snapshot of transaction ids that were
	// ONGOING when this transaction began; it anchors "other committed
	// before this started" in the visibility algorithm.
	concurrentAtStart map[uint64]struct{}

	walLog wal.Log
	logger zerolog.Logger
}

func newTransaction(id TransactionID, vocbaseID VocbaseID, manager *TransactionManager, parent *Transaction, walLog wal.Log) *Transaction {
	t := &Transaction{
		id:                id,
		vocbaseID:         vocbaseID,
		manager:           manager,
		parent:            parent,
		collections:       make(map[string]*TransactionCollection),
		stats:             make(map[string]*CollectionStats),
		concurrentAtStart: make(map[uint64]struct{}),
		walLog:            walLog,
		logger:            log.WithComponent("tx"),
	}
	if parent == nil {
		t.top = t
	} else {
		t.top = parent.top
	}
	return t
}

// ID returns the transaction's id.
func (t *Transaction) ID() TransactionID {
	return t.id
}

// Status returns the transaction's current status.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Kill marks the transaction for rollback at its next commit attempt.
func (t *Transaction) Kill() {
	t.killed.Store(true)
}

// Killed reports whether Kill was called.
func (t *Transaction) Killed() bool {
	return t.killed.Load()
}

// begin transitions CREATED -> ONGOING, applies hints, snapshots
// concurrently running transactions, and acquires collection locks
// per spec section 4.4. Declared collections are registered as
// TransactionCollections; a READ declaration is upgraded to WRITE if
// a later declaration in the same call asks for WRITE.
func (t *Transaction) begin(hints Hints, declarations []CollectionDeclaration, runningSnapshot []TransactionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusCreated {
		return wrapError(KindTransactionInternal, "begin called on non-CREATED transaction", nil)
	}

	t.hints = hints
	t.startTime = time.Now()
	t.flags.set(FlagInitialized)

	for _, rt := range runningSnapshot {
		t.concurrentAtStart[rt.Own] = struct{}{}
	}

	merged := make(map[string]*CollectionDeclaration, len(declarations))
	order := make([]string, 0, len(declarations))
	for i := range declarations {
		d := declarations[i]
		if existing, ok := merged[d.Name]; ok {
			if d.Access == AccessWrite {
				existing.Access = AccessWrite
			}
			continue
		}
		order = append(order, d.Name)
		decl := d
		merged[d.Name] = &decl
	}

	anyWrite := false
	for _, name := range order {
		d := merged[name]
		tc := newTransactionCollection(t, d.Handle, d.Access)
		t.collections[name] = tc
		t.stats[name] = &CollectionStats{}
		if d.Access == AccessWrite {
			anyWrite = true
		}
	}

	if hints.LockEntirely || anyWrite {
		for _, name := range order {
			t.collections[name].acquireLock()
		}
	}

	t.status = StatusOngoing
	metrics.TransactionsActive.Inc()
	t.logger.Debug().Str("tid", t.id.String()).Msg("transaction began")

	return nil
}

// Collection returns the TransactionCollection bound to name, or
// ErrTransactionUnregisteredCollection if name was not declared at
// begin.
func (t *Transaction) Collection(name string) (*TransactionCollection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tc, ok := t.collections[name]
	if !ok {
		return nil, ErrTransactionUnregisteredCollection
	}
	return tc, nil
}

// Stats returns the accumulated CollectionStats for name, creating an
// empty one if the collection has no recorded mutations yet.
func (t *Transaction) Stats(name string) *CollectionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok {
		s = &CollectionStats{}
		t.stats[name] = s
	}
	return s
}

// ensureBeginMarkerWritten appends the lazy begin marker before the
// first data marker and records that this has been done. No begin
// marker is appended for NoBeginMarker or SingleOperation transactions,
// or when there is no WAL.
func (t *Transaction) ensureBeginMarkerWritten() error {
	if t.flags.has(FlagBeginMarkerWritten) || t.hints.NoBeginMarker || t.hints.SingleOperation || t.walLog == nil {
		t.flags.set(FlagBeginMarkerWritten)
		return nil
	}
	_, err := t.walLog.Append(wal.Marker{
		Kind:         wal.BeginTransaction,
		VocbaseID:    string(t.vocbaseID),
		Tx:           wal.TxID{Own: t.id.Own, Top: t.id.Top},
	})
	if err != nil {
		return wrapError(KindInternal, "append begin marker", err)
	}
	t.flags.set(FlagBeginMarkerWritten)
	return nil
}

// MarkDataMarkerWritten records the first data marker has been
// appended, lazily writing the begin marker first if needed.
func (t *Transaction) MarkDataMarkerWritten() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureBeginMarkerWritten(); err != nil {
		return err
	}
	t.flags.set(FlagDataMarkerWritten)
	return nil
}

// Commit asserts ONGOING, rolls back any still-ongoing subtransaction,
// invokes PreCommit on every touched index, writes the commit marker
// unless suppressed, transitions to COMMITTED, deregisters from the
// manager, and releases collection locks in reverse order.
func (t *Transaction) Commit() error {
	t.mu.Lock()

	if t.status != StatusOngoing {
		t.mu.Unlock()
		return wrapError(KindTransactionInternal, "commit called on non-ONGOING transaction", nil)
	}

	if t.killed.Load() {
		t.mu.Unlock()
		return t.Rollback()
	}

	if t.activeChild != nil && t.activeChild.Status() == StatusOngoing {
		t.mu.Unlock()
		if err := t.activeChild.Rollback(); err != nil {
			return err
		}
		t.mu.Lock()
	}

	names := make([]string, 0, len(t.collections))
	for name := range t.collections {
		names = append(names, name)
	}

	for _, name := range names {
		tc := t.collections[name]
		for _, idx := range tc.Handle.Indexes() {
			if err := idx.PreCommit(t); err != nil {
				t.mu.Unlock()
				return err
			}
		}
	}

	writeEnd := t.flags.has(FlagBeginMarkerWritten) &&
		!t.hints.SingleOperation

	start := t.startTime
	t.status = StatusCommitted
	t.mu.Unlock()

	if writeEnd && t.walLog != nil {
		if _, err := t.walLog.Append(wal.Marker{
			Kind:      wal.CommitTransaction,
			VocbaseID: string(t.vocbaseID),
			Tx:        wal.TxID{Own: t.id.Own, Top: t.id.Top},
		}); err != nil {
			t.logger.Error().Err(err).Str("tid", t.id.String()).Msg("commit marker append failed")
		}
		t.flags.set(FlagEndMarkerWritten)
	}

	t.releaseLocksReverse(names)
	t.manager.unregister(t, StatusCommitted)
	t.recordSubtransactionResult(StatusCommitted)

	metrics.TransactionsActive.Dec()
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	metrics.TransactionDuration.Observe(time.Since(start).Seconds())
	t.logger.Debug().Str("tid", t.id.String()).Msg("transaction committed")

	return nil
}

// Rollback asserts ONGOING, rolls back any ongoing child first, and
// undoes every master pointer recorded via RecordInsert: each index of
// its collection Forgets it and the master pointer manager Unlinks it
// (recycling it once no iterator holds it). Writes the abort marker
// unless suppressed, transitions to ROLLED_BACK, and deregisters.
func (t *Transaction) Rollback() error {
	t.mu.Lock()

	if t.status != StatusOngoing {
		t.mu.Unlock()
		return wrapError(KindTransactionInternal, "rollback called on non-ONGOING transaction", nil)
	}

	if t.activeChild != nil && t.activeChild.Status() == StatusOngoing {
		child := t.activeChild
		t.mu.Unlock()
		_ = child.Rollback()
		t.mu.Lock()
	}

	names := make([]string, 0, len(t.collections))
	for name := range t.collections {
		names = append(names, name)
	}

	for _, name := range names {
		tc := t.collections[name]
		for _, mp := range tc.insertedPointers {
			for _, idx := range tc.Handle.Indexes() {
				_ = idx.Forget(t, mp)
			}
			tc.Handle.MasterpointerManager().Unlink(mp)
		}
	}

	writeAbort := t.flags.has(FlagBeginMarkerWritten) && !t.hints.NoAbortMarker

	t.status = StatusRolledBack
	t.mu.Unlock()

	if writeAbort && t.walLog != nil {
		if _, err := t.walLog.Append(wal.Marker{
			Kind:      wal.AbortTransaction,
			VocbaseID: string(t.vocbaseID),
			Tx:        wal.TxID{Own: t.id.Own, Top: t.id.Top},
		}); err != nil {
			t.logger.Warn().Err(err).Str("tid", t.id.String()).Msg("abort marker append failed")
		}
	}

	t.releaseLocksReverse(names)
	t.manager.unregister(t, StatusRolledBack)
	t.recordSubtransactionResult(StatusRolledBack)

	metrics.TransactionsActive.Dec()
	metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
	t.logger.Debug().Str("tid", t.id.String()).Msg("transaction rolled back")

	return nil
}

func (t *Transaction) releaseLocksReverse(names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		t.collections[names[i]].releaseLock()
	}
}

// recordSubtransactionResult appends this transaction's terminal
// status to its top-level ancestor's subtransaction list, so sibling
// visibility checks can find it regardless of nesting depth. Top-level
// transactions record nothing (they deregister from the manager
// instead, which is consulted directly).
func (t *Transaction) recordSubtransactionResult(status Status) {
	if t.parent == nil {
		return
	}
	t.top.mu.Lock()
	defer t.top.mu.Unlock()
	t.top.subtransactions = append(t.top.subtransactions, subtransactionRecord{id: t.id, status: status})
	if t.parent.activeChild == t {
		t.parent.activeChild = nil
	}
}

// Visibility classifies otherTid relative to t, per spec section 4.4.
func (t *Transaction) Visibility(otherTid TransactionID) Visibility {
	if !otherTid.IsSet() {
		return VisibilityInvisible
	}
	if otherTid == t.id {
		return VisibilityVisible
	}

	if otherTid.Top == t.id.Top {
		return t.siblingVisibility(otherTid)
	}

	otherStatus, ok := t.manager.statusTransaction(otherTid)
	if !ok {
		return VisibilityConcurrent
	}

	switch otherStatus {
	case StatusCommitted:
		t.mu.Lock()
		_, wasRunning := t.concurrentAtStart[otherTid.Own]
		t.mu.Unlock()
		if otherTid.Own < t.id.Own && !wasRunning {
			return VisibilityVisible
		}
		return VisibilityConcurrent
	case StatusRolledBack:
		return VisibilityInvisible
	default:
		return VisibilityConcurrent
	}
}

func (t *Transaction) siblingVisibility(otherTid TransactionID) Visibility {
	if otherTid.Own == otherTid.Top {
		// The top-level transaction's own direct writes are always
		// visible to its descendants.
		return VisibilityVisible
	}

	t.top.mu.Lock()
	defer t.top.mu.Unlock()
	for i := len(t.top.subtransactions) - 1; i >= 0; i-- {
		rec := t.top.subtransactions[i]
		if rec.id.Own == otherTid.Own {
			if rec.status == StatusCommitted {
				return VisibilityVisible
			}
			return VisibilityInvisible
		}
	}
	return VisibilityConcurrent
}

// IsVisibleForRead is the predicate master-pointer iterators use:
// true iff from is visible to t and to is not.
func (t *Transaction) IsVisibleForRead(from, to TransactionID) bool {
	return t.Visibility(from) == VisibilityVisible && t.Visibility(to) != VisibilityVisible
}

// beginSubTransaction creates a child transaction sharing t's top id,
// per the "at most one ONGOING child at a time" invariant.
func (t *Transaction) beginSubTransaction(id TransactionID, declarations []CollectionDeclaration) (*Transaction, error) {
	t.mu.Lock()
	if t.activeChild != nil && t.activeChild.Status() == StatusOngoing {
		t.mu.Unlock()
		return nil, wrapError(KindTransactionInternal, "a subtransaction is already ongoing", nil)
	}
	t.mu.Unlock()

	child := newTransaction(id, t.vocbaseID, t.manager, t, t.walLog)
	if err := child.begin(t.hints, declarations, nil); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.activeChild = child
	t.mu.Unlock()

	metrics.SubTransactionsTotal.Inc()
	return child, nil
}
