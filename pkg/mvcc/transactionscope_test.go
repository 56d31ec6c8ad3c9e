package mvcc

import (
	"testing"

	"github.com/docstore/engine/pkg/ticks"
)

func TestScopeCreatesAndCommitsOwnedTransaction(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	scope, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("new scope: %v", err)
	}
	if !scope.owns {
		t.Fatal("expected scope to own a freshly created transaction")
	}

	if err := scope.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	scope.Close()

	if scope.Transaction().Status() != StatusCommitted {
		t.Fatalf("expected COMMITTED, got %v", scope.Transaction().Status())
	}
	if stack.Top() != nil {
		t.Fatal("expected stack empty after scope closed")
	}
}

func TestScopeReusesOpenTransactionWithoutOwning(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	outer, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("outer scope: %v", err)
	}
	defer outer.Close()

	inner, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("inner scope: %v", err)
	}

	if inner.owns {
		t.Fatal("expected inner scope to reuse, not own")
	}
	if inner.Transaction() != outer.Transaction() {
		t.Fatal("expected inner scope to reuse outer's transaction")
	}

	if err := inner.Commit(); err != nil {
		t.Fatalf("inner commit (no-op): %v", err)
	}
	inner.Close()

	if outer.Transaction().Status() != StatusOngoing {
		t.Fatal("inner scope must not have committed the shared transaction")
	}
}

func TestScopeClosesUncommittedAsRollback(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	scope, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("new scope: %v", err)
	}
	scope.Close()

	if scope.Transaction().Status() != StatusRolledBack {
		t.Fatalf("expected ROLLED_BACK on close without commit, got %v", scope.Transaction().Status())
	}
}

func TestScopeForceNewCreatesIndependentTransaction(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	outer, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("outer scope: %v", err)
	}
	defer outer.Close()

	forced, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1", ForceNew: true})
	if err != nil {
		t.Fatalf("forced scope: %v", err)
	}
	defer forced.Close()

	if forced.Transaction() == outer.Transaction() {
		t.Fatal("expected ForceNew to create a distinct transaction")
	}
	if !forced.owns {
		t.Fatal("expected forced scope to own its transaction")
	}
}

func TestScopeAllowSubTransactionJoinsAsChild(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	outer, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("outer scope: %v", err)
	}
	defer outer.Close()

	sub, err := NewTransactionScope(mgr, stack, ScopeOptions{VocbaseID: "db1", AllowSubTransaction: true})
	if err != nil {
		t.Fatalf("sub scope: %v", err)
	}

	if !sub.owns {
		t.Fatal("expected sub-transaction scope to own its child transaction")
	}
	if sub.Transaction().ID().Top != outer.Transaction().ID().Top {
		t.Fatal("expected subtransaction to share outer's top id")
	}

	if err := sub.Commit(); err != nil {
		t.Fatalf("commit sub: %v", err)
	}
	sub.Close()

	if got := outer.Transaction().Visibility(sub.Transaction().ID()); got != VisibilityVisible {
		t.Fatalf("expected committed subtransaction visible to parent, got %v", got)
	}
}
