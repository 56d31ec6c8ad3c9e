package mvcc

import (
	"testing"

	"github.com/docstore/engine/pkg/ticks"
)

type fakeHandle struct {
	id   uint64
	name string
	mgr  *MasterpointerManager
	idx  []Index
}

func (h *fakeHandle) ID() uint64                               { return h.id }
func (h *fakeHandle) Name() string                              { return h.name }
func (h *fakeHandle) MasterpointerManager() *MasterpointerManager { return h.mgr }
func (h *fakeHandle) Indexes() []Index                          { return h.idx }
func (h *fakeHandle) Lock()                                     {}
func (h *fakeHandle) Unlock()                                   {}
func (h *fakeHandle) RLock()                                    {}
func (h *fakeHandle) RUnlock()                                  {}

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{id: 1, name: name, mgr: NewMasterpointerManager(name, 4, 16)}
}

func TestTransactionBeginCommitVisibility(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	handle := newFakeHandle("users")

	tx, err := mgr.Begin(BeginOptions{
		VocbaseID: "db1",
		Declarations: []CollectionDeclaration{
			{Name: "users", Handle: handle, Access: AccessWrite},
		},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	tc, err := tx.Collection("users")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if tc.Access != AccessWrite {
		t.Fatal("expected write access")
	}

	c := handle.mgr.Create("k1", []byte(`{}`), 1, tx.ID())
	c.Link()
	tc.RecordInsert(c.MasterPointer())

	if tx.Visibility(tx.ID()) != VisibilityVisible {
		t.Fatal("own writes must be visible to self")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reader, err := mgr.Begin(BeginOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("begin reader: %v", err)
	}
	if got := reader.Visibility(tx.ID()); got != VisibilityVisible {
		t.Fatalf("expected committed writer visible to later reader, got %v", got)
	}
}

func TestTransactionRollbackForgetsInserts(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	handle := newFakeHandle("users")

	tx, err := mgr.Begin(BeginOptions{
		VocbaseID: "db1",
		Declarations: []CollectionDeclaration{
			{Name: "users", Handle: handle, Access: AccessWrite},
		},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	tc, _ := tx.Collection("users")
	c := handle.mgr.Create("k1", []byte(`{}`), 1, tx.ID())
	c.Link()
	tc.RecordInsert(c.MasterPointer())

	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if got := handle.mgr.LiveCount(); got != 0 {
		t.Fatalf("expected rollback to unlink inserted pointer, live count = %d", got)
	}
}

func TestConcurrentTransactionNotVisibleUntilCommit(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())

	writer, err := mgr.Begin(BeginOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("begin writer: %v", err)
	}
	reader, err := mgr.Begin(BeginOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("begin reader: %v", err)
	}

	if got := reader.Visibility(writer.ID()); got != VisibilityConcurrent {
		t.Fatalf("expected CONCURRENT before commit, got %v", got)
	}

	if err := writer.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// reader began before writer committed, so reader's snapshot marks
	// writer as concurrent-at-start: it must stay invisible to reader even
	// after commit.
	if got := reader.Visibility(writer.ID()); got != VisibilityConcurrent {
		t.Fatalf("expected still CONCURRENT to a reader that started earlier, got %v", got)
	}
}

func TestSubTransactionVisibleToParentAfterCommit(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	stack := NewTransactionStack()

	parent, err := mgr.Begin(BeginOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("begin parent: %v", err)
	}
	stack.push(parent)

	child, err := mgr.Begin(BeginOptions{
		VocbaseID:           "db1",
		Stack:               stack,
		AllowSubtransaction: true,
	})
	if err != nil {
		t.Fatalf("begin child: %v", err)
	}

	if got := parent.Visibility(child.ID()); got != VisibilityConcurrent {
		t.Fatalf("expected CONCURRENT before child commits, got %v", got)
	}

	if err := child.Commit(); err != nil {
		t.Fatalf("commit child: %v", err)
	}

	if got := parent.Visibility(child.ID()); got != VisibilityVisible {
		t.Fatalf("expected VISIBLE to parent after child commits, got %v", got)
	}
}

func TestKilledTransactionCommitsAsRollback(t *testing.T) {
	mgr := NewTransactionManager(ticks.NewService())
	tx, err := mgr.Begin(BeginOptions{VocbaseID: "db1"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	tx.Kill()
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit after kill: %v", err)
	}
	if tx.Status() != StatusRolledBack {
		t.Fatalf("expected killed transaction to roll back on commit, got %v", tx.Status())
	}
}
