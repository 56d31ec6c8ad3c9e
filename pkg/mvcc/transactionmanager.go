package mvcc

import (
	"sync"

	"github.com/docstore/engine/pkg/ticks"
	"github.com/docstore/engine/pkg/wal"
)

// TransactionStack is the explicit per-caller stack of open
// transactions a TransactionScope pushes onto and pops from. Spec
// section 9 calls for a "thread-local transaction stack" so nested
// scopes discover their parent without a lookup; Go has no thread-local
// storage, so this is carried explicitly by the caller (one stack per
// goroutine that drives transactions) rather than faked with a
// goroutine-id hack.
type TransactionStack struct {
	mu    sync.Mutex
	items []*Transaction
}

// NewTransactionStack returns an empty stack.
func NewTransactionStack() *TransactionStack {
	return &TransactionStack{}
}

// Top returns the innermost open transaction, or nil if empty.
func (s *TransactionStack) Top() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

func (s *TransactionStack) push(t *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
}

func (s *TransactionStack) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return
	}
	s.items = s.items[:len(s.items)-1]
}

// TransactionManager issues ids, maintains the status table, lists
// running transactions, and acts as the visibility oracle, per spec
// section 4.5. The process-wide instance's lifetime is explicit: a
// single NewTransactionManager at startup and no implicit global —
// callers hold and pass the *TransactionManager they were given,
// matching the "global process-wide state" redesign note without an
// actual package-level global.
type TransactionManager struct {
	mu sync.Mutex

	ids     *ticks.Service
	running map[uint64]*Transaction
	status  map[uint64]Status

	// minRunning is the smallest id currently registered as running;
	// unknown ids below it are treated as COMMITTED (their markers
	// must already have been replayed), per spec section 4.5.
	minRunning uint64
}

// NewTransactionManager creates a manager seeded from ids (typically
// shared with, or seeded from, the collection's tick service).
func NewTransactionManager(ids *ticks.Service) *TransactionManager {
	return &TransactionManager{
		ids:     ids,
		running: make(map[uint64]*Transaction),
		status:  make(map[uint64]Status),
	}
}

// BeginOptions groups the parameters Begin needs to create or join a
// transaction.
type BeginOptions struct {
	VocbaseID       VocbaseID
	Stack           *TransactionStack
	WAL             wal.Log
	Declarations    []CollectionDeclaration
	Hints           Hints
	AllowSubtransaction bool
}

// Begin returns a new top-level Transaction or, if the stack already
// holds an ongoing transaction and AllowSubtransaction is set, a new
// child subtransaction whose parent is the top of that stack. This
// folds together spec section 4.5's createTransaction and section
// 4.4's begin into one call, since nothing in the core ever observes a
// Transaction between creation and begin.
func (m *TransactionManager) Begin(opts BeginOptions) (*Transaction, error) {
	if opts.AllowSubtransaction && opts.Stack != nil {
		if parent := opts.Stack.Top(); parent != nil {
			if parent.vocbaseID != opts.VocbaseID {
				return nil, wrapError(KindTransactionInternal, "subtransaction vocbase mismatch", nil)
			}
			id := m.nextID()
			child, err := parent.beginSubTransaction(TransactionID{Own: id, Top: parent.id.Top}, opts.Declarations)
			if err != nil {
				return nil, err
			}
			m.register(child)
			return child, nil
		}
	}

	own := m.nextID()
	id := TransactionID{Own: own, Top: own}

	t := newTransaction(id, opts.VocbaseID, m, nil, opts.WAL)

	running := m.runningTransactions(opts.VocbaseID)

	if err := t.begin(opts.Hints, opts.Declarations, running); err != nil {
		return nil, err
	}

	m.register(t)
	return t, nil
}

func (m *TransactionManager) nextID() uint64 {
	return uint64(m.ids.Next())
}

func (m *TransactionManager) register(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[t.id.Own] = t
	m.status[t.id.Own] = StatusOngoing
	if m.minRunning == 0 || t.id.Own < m.minRunning {
		m.minRunning = t.id.Own
	}
}

// unregister asserts the transaction is terminal, removes it from the
// running set, and records its final status in the status table for
// subsequent visibility queries.
func (m *TransactionManager) unregister(t *Transaction, final Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.running, t.id.Own)
	m.status[t.id.Own] = final

	if t.id.Own == m.minRunning {
		m.minRunning = m.lowestRunningLocked()
	}
}

func (m *TransactionManager) lowestRunningLocked() uint64 {
	var min uint64
	for id := range m.running {
		if min == 0 || id < min {
			min = id
		}
	}
	return min
}

// statusTransaction looks up tid's status. Unknown ids smaller than
// the current minimum-running id are treated as COMMITTED (their
// markers must already have been replayed); otherwise ok is false and
// the caller should treat the id as CONCURRENT.
func (m *TransactionManager) statusTransaction(tid TransactionID) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.status[tid.Own]; ok {
		return s, true
	}
	if m.minRunning != 0 && tid.Own < m.minRunning {
		return StatusCommitted, true
	}
	return StatusOngoing, false
}

// SeedAfterReplay raises minRunning so that every transaction id up to
// and including maxReplayedTick is treated as COMMITTED by
// statusTransaction, rather than CONCURRENT, the moment the manager is
// constructed after a WAL replay and before any transaction has
// registered (minRunning otherwise starts at the zero value, under
// which the "unknown old id = COMMITTED" rule is inactive). A no-op if
// minRunning is already higher.
func (m *TransactionManager) SeedAfterReplay(maxReplayedTick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxReplayedTick+1 > m.minRunning {
		m.minRunning = maxReplayedTick + 1
	}
}

// runningTransactions returns the ids currently registered as running
// for vocbaseID, used both for diagnostics and to snapshot
// "concurrent at start" when a new transaction begins.
func (m *TransactionManager) runningTransactions(vocbaseID VocbaseID) []TransactionID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]TransactionID, 0, len(m.running))
	for _, t := range m.running {
		if t.vocbaseID == vocbaseID {
			ids = append(ids, t.id)
		}
	}
	return ids
}
