package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/vocbase"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted sequence of inserts, conflicts, and a reopen replay",
	Long: `demo drives a throwaway vocbase under --data-dir through a handful of
scenarios chosen to exercise the transaction subsystem's visible
behavior end to end:

  1. insert and read back a document
  2. a duplicate key rejected as a unique-constraint violation
  3. two concurrent transactions racing on the same key (write conflict)
  4. a snapshot transaction that does not see a commit made after it began
  5. closing and reopening the vocbase, proving replay reconstructs state

Each step prints what it did and what the engine returned.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Bool("fresh", true, "Remove any existing data directory before starting")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if fresh, _ := cmd.Flags().GetBool("fresh"); fresh {
		if err := os.RemoveAll(cfg.DataDir); err != nil {
			return fmt.Errorf("clear data dir: %w", err)
		}
	}

	const coll = "documents"
	vb, walLog, err := openEngine(cfg, []string{coll})
	if err != nil {
		return err
	}

	stack := mvcc.NewTransactionStack()

	fmt.Println("1. insert + read back")
	if err := insertDocument(vb, stack, coll, "alice", []byte(`{"_key":"alice","name":"Alice"}`), 1); err != nil {
		walLog.Close()
		return fmt.Errorf("insert alice: %w", err)
	}
	body, err := getDocument(vb, coll, "alice")
	if err != nil {
		walLog.Close()
		return fmt.Errorf("read alice: %w", err)
	}
	fmt.Printf("   read back: %s\n\n", body)

	fmt.Println("2. duplicate key insert")
	err = insertDocument(vb, stack, coll, "alice", []byte(`{"_key":"alice","name":"Alice2"}`), 2)
	fmt.Printf("   result: %v (want UniqueConstraintViolated)\n\n", err)

	fmt.Println("3. write conflict between two concurrent transactions")
	// Both transactions are begun undeclared (no collection lock), the
	// same way the engine's own concurrency tests exercise classification
	// without serializing on a collection's write lock: a normal insert
	// via insertDocument would take that lock for its whole lifetime and
	// the second transaction could never observe the first as still
	// open. Master pointers are created and inserted directly against
	// the collection's indexes instead of going through tx.Collection.
	dc, _ := vb.Lookup(coll)
	tx1, err := vb.TransactionManager().Begin(mvcc.BeginOptions{
		VocbaseID: vb.ID(), Stack: stack, WAL: vb.WAL(),
	})
	if err != nil {
		walLog.Close()
		return err
	}
	c1 := dc.MasterpointerManager().Create("bob", []byte(`{"_key":"bob","name":"Bob"}`), 1, tx1.ID())
	for _, idx := range dc.Indexes() {
		if err := idx.Insert(tx1, c1.MasterPointer()); err != nil {
			walLog.Close()
			return fmt.Errorf("tx1 insert bob: %w", err)
		}
	}
	c1.Link()

	tx2, err := vb.TransactionManager().Begin(mvcc.BeginOptions{
		VocbaseID: vb.ID(), Stack: stack, WAL: vb.WAL(),
	})
	if err != nil {
		walLog.Close()
		return err
	}
	c2 := dc.MasterpointerManager().Create("bob", []byte(`{"_key":"bob","name":"Bob2"}`), 1, tx2.ID())
	var conflictErr error
	for _, idx := range dc.Indexes() {
		if err := idx.Insert(tx2, c2.MasterPointer()); err != nil {
			conflictErr = err
			break
		}
	}
	fmt.Printf("   tx2 insert bob while tx1 is still open: %v (want WriteConflict)\n", conflictErr)
	c2.Release()
	tx2.Rollback()
	if err := tx1.Commit(); err != nil {
		walLog.Close()
		return fmt.Errorf("tx1 commit: %w", err)
	}
	fmt.Println()

	fmt.Println("4. snapshot isolation")
	snapshot, err := vb.TransactionManager().Begin(mvcc.BeginOptions{
		VocbaseID: vb.ID(), Stack: stack, WAL: vb.WAL(),
		Declarations: mustDeclare(vb, coll, mvcc.AccessRead),
	})
	if err != nil {
		walLog.Close()
		return err
	}
	if err := insertDocument(vb, stack, coll, "carol", []byte(`{"_key":"carol","name":"Carol"}`), 1); err != nil {
		walLog.Close()
		return fmt.Errorf("insert carol: %w", err)
	}
	fmt.Printf("   snapshot taken before carol was committed sees her transaction as: %s\n", snapshot.Visibility(carolTxID(vb, coll)))
	snapshot.Commit()
	fmt.Println()

	count := dc.DocumentCount()
	walLog.Close()

	fmt.Println("5. close and reopen: replay reconstructs state")
	vb2, walLog2, err := openEngine(cfg, []string{coll})
	if err != nil {
		return err
	}
	defer walLog2.Close()
	dc2, _ := vb2.Lookup(coll)
	fmt.Printf("   before reopen documentCount=%d, after reopen documentCount=%d\n", count, dc2.DocumentCount())
	if dc2.DocumentCount() != count {
		return errors.New("replay did not reconstruct the same document count")
	}

	fmt.Println("\ndemo complete")
	return nil
}

func mustDeclare(vb *vocbase.Vocbase, coll string, access mvcc.CollectionAccess) []mvcc.CollectionDeclaration {
	decls, _ := vb.Declare([]vocbase.CollectionWant{{Name: coll, Access: access}})
	return decls
}

// carolTxID re-looks-up carol's current master pointer to report which
// transaction id created her, purely for the snapshot-visibility print
// above.
func carolTxID(vb *vocbase.Vocbase, coll string) mvcc.TransactionID {
	dc, _ := vb.Lookup(coll)
	idx, ok := dc.Indexes()[0].(lookupper)
	if !ok {
		return mvcc.TransactionID{}
	}
	idx.RLock()
	defer idx.RUnlock()
	chain := idx.Lookup("carol")
	if len(chain) == 0 {
		return mvcc.TransactionID{}
	}
	return chain[len(chain)-1].From
}
