package mvcc

import (
	"github.com/docstore/engine/pkg/wal"
)

// TransactionScope is the RAII-equivalent scoped-acquisition helper
// from spec section 4.6: an operation asks for a scope rather than a
// raw Transaction, and the scope decides whether to reuse the
// stack's current top, join it as a subtransaction, or create a
// brand-new top-level one. Go has no destructors, so the cleanup the
// original expressed via a stack-unwinding destructor is an explicit
// Close here, which callers invoke with defer; Close only acts when
// this scope owns the transaction it wraps.
type TransactionScope struct {
	manager *TransactionManager
	stack   *TransactionStack

	tx     *Transaction
	owns   bool
	pushed bool
	closed bool
}

// ScopeOptions controls how a TransactionScope resolves against the
// stack's current top.
type ScopeOptions struct {
	VocbaseID    VocbaseID
	WAL          wal.Log
	Declarations []CollectionDeclaration
	Hints        Hints

	// ForceNew always creates a fresh top-level transaction even if one
	// is already open on the stack, per spec section 4.6's "force new"
	// flag.
	ForceNew bool

	// AllowSubTransaction lets this scope join the open transaction as
	// a child subtransaction instead of reusing it directly, per
	// section 4.6's "allow sub" flag.
	AllowSubTransaction bool
}

// NewTransactionScope resolves opts against stack's current top:
//
//   - no open transaction, or ForceNew: create one, push it, and own it.
//   - an open transaction exists and its vocbase matches: reuse it
//     without owning it, so Commit and Close never commit or roll it
//     back (AllowSubTransaction false), or begin+push a subtransaction
//     that this scope owns (AllowSubTransaction true).
//   - an open transaction exists for a different vocbase: error, per
//     section 4.6's identity-mismatch check.
func NewTransactionScope(manager *TransactionManager, stack *TransactionStack, opts ScopeOptions) (*TransactionScope, error) {
	top := stack.Top()

	if top != nil && !opts.ForceNew {
		if top.vocbaseID != opts.VocbaseID {
			return nil, wrapError(KindTransactionInternal, "transaction scope vocbase mismatch", nil)
		}

		if !opts.AllowSubTransaction {
			return &TransactionScope{manager: manager, stack: stack, tx: top, owns: false}, nil
		}

		child, err := manager.Begin(BeginOptions{
			VocbaseID:           opts.VocbaseID,
			Stack:               stack,
			WAL:                 opts.WAL,
			Declarations:        opts.Declarations,
			Hints:                opts.Hints,
			AllowSubtransaction: true,
		})
		if err != nil {
			return nil, err
		}
		stack.push(child)
		return &TransactionScope{manager: manager, stack: stack, tx: child, owns: true, pushed: true}, nil
	}

	t, err := manager.Begin(BeginOptions{
		VocbaseID:    opts.VocbaseID,
		Stack:        stack,
		WAL:          opts.WAL,
		Declarations: opts.Declarations,
		Hints:        opts.Hints,
	})
	if err != nil {
		return nil, err
	}
	stack.push(t)
	return &TransactionScope{manager: manager, stack: stack, tx: t, owns: true, pushed: true}, nil
}

// Transaction returns the scope's underlying Transaction.
func (s *TransactionScope) Transaction() *Transaction {
	return s.tx
}

// Commit commits the wrapped transaction if this scope owns it;
// otherwise it is a no-op, leaving commit/rollback to the outermost
// owning scope (spec section 4.6: "commit defers to the outermost
// owner").
func (s *TransactionScope) Commit() error {
	if !s.owns || s.closed {
		return nil
	}
	return s.tx.Commit()
}

// Close rolls back the wrapped transaction if this scope owns it and
// it is still ONGOING (the caller never committed), and pops it from
// the stack. Safe to call multiple times and safe to call after
// Commit. Mirrors the original's destructor-triggered rollback for a
// transaction that falls out of scope without an explicit commit.
func (s *TransactionScope) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.pushed {
		s.stack.pop()
	}

	if s.owns && s.tx.Status() == StatusOngoing {
		_ = s.tx.Rollback()
	}
}
