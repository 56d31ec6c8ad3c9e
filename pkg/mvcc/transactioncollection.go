package mvcc

import "sync"

// CollectionHandle is the narrow, non-owning view a TransactionCollection
// binds to. The concrete implementation (pkg/collection.DocumentCollection)
// is resolved by name through the vocbase-level registry before a
// transaction begins; mvcc never imports pkg/collection, breaking the
// collection<->index<->transaction ownership cycle per spec section 9's
// redesign note.
type CollectionHandle interface {
	ID() uint64
	Name() string
	MasterpointerManager() *MasterpointerManager
	Indexes() []Index
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// TransactionCollection is a transaction's per-collection binding:
// access type, nesting level, lock state, and the set of master
// pointers this transaction has inserted (needed for rollback cleanup).
// Invariant enforced by Transaction.begin: at most one TransactionCollection
// exists per (transaction, collection). Upgrading an existing READ
// binding to WRITE inside a nested scope is not rejected anywhere: a
// scope that reuses the open transaction ignores its declarations, and a
// subtransaction scope gets bindings of its own. TransactionCollection
// itself just stores whichever access level begin() resolved.
type TransactionCollection struct {
	mu sync.Mutex

	Handle             CollectionHandle
	Access             CollectionAccess
	NestingLevel       int
	CompactionLockHeld bool
	OriginalRevisionID uint64
	WaitForSync        bool

	locked bool

	insertedPointers []*MasterPointer
}

func newTransactionCollection(t *Transaction, handle CollectionHandle, access CollectionAccess) *TransactionCollection {
	level := 0
	if t.parent != nil {
		level = 1
		for p := t.parent; p != nil; p = p.parent {
			level++
		}
	}
	return &TransactionCollection{
		Handle:       handle,
		Access:       access,
		NestingLevel: level,
	}
}

// acquireLock takes the handle's read or write lock according to
// Access. Called by Transaction.begin when locks are not deferred to
// per-operation scope.
func (tc *TransactionCollection) acquireLock() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.locked {
		return
	}
	if tc.Access == AccessWrite {
		tc.Handle.Lock()
	} else {
		tc.Handle.RLock()
	}
	tc.locked = true
}

func (tc *TransactionCollection) releaseLock() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.locked {
		return
	}
	if tc.Access == AccessWrite {
		tc.Handle.Unlock()
	} else {
		tc.Handle.RUnlock()
	}
	tc.locked = false
}

// RecordInsert tracks mp as created by this transaction's collection
// binding, so Rollback can forget/recycle it if the transaction never
// commits.
func (tc *TransactionCollection) RecordInsert(mp *MasterPointer) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.insertedPointers = append(tc.insertedPointers, mp)
}
