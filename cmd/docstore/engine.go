package main

import (
	"fmt"
	"path/filepath"

	"github.com/docstore/engine/pkg/config"
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
	"github.com/docstore/engine/pkg/vocbase"
	"github.com/docstore/engine/pkg/wal"
	"github.com/spf13/cobra"
)

// loadConfig resolves --config if given, otherwise --data-dir layered
// onto config.Default(), mirroring the teacher's flag-then-file
// resolution order in cmd/warren.
func loadConfig(cmd *cobra.Command) (config.EngineConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.Load(configPath)
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg := config.Default()
	cfg.DataDir = dataDir
	return cfg, nil
}

// openEngine opens (creating if necessary) the bbolt-backed WAL under
// cfg.DataDir and the vocbase that replays collectionNames against it.
// Callers must Close the returned wal.Log once done.
func openEngine(cfg config.EngineConfig, collectionNames []string) (*vocbase.Vocbase, wal.Log, error) {
	walPath := filepath.Join(cfg.DataDir, "wal.db")
	walLog, err := wal.Open(walPath, wal.ThrottlingPolicy{})
	if err != nil {
		return nil, nil, fmt.Errorf("open wal: %w", err)
	}

	vb, err := vocbase.Open("default", "default", walLog, shape.NewInMemoryService(), mvcc.UUIDKeyGenerator{}, cfg, collectionNames)
	if err != nil {
		walLog.Close()
		return nil, nil, fmt.Errorf("open vocbase: %w", err)
	}
	return vb, walLog, nil
}

// insertDocument begins a write transaction on collName, creates a
// master pointer for (key, body), inserts it into every one of the
// collection's indexes, links it into the publication list, and
// appends the WAL marker, then commits. On any index rejecting the
// insert (unique conflict or write conflict), already-accepted indexes
// are unwound via Forget and the transaction is rolled back.
func insertDocument(vb *vocbase.Vocbase, stack *mvcc.TransactionStack, collName, key string, body []byte, revisionID uint64) error {
	dc, ok := vb.Lookup(collName)
	if !ok {
		return fmt.Errorf("collection %q not found", collName)
	}

	if key == "" {
		key = dc.KeyGenerator().Generate()
	} else if err := dc.KeyGenerator().Validate(key); err != nil {
		return err
	}

	decls, err := vb.Declare([]vocbase.CollectionWant{{Name: collName, Access: mvcc.AccessWrite}})
	if err != nil {
		return err
	}

	tx, err := vb.TransactionManager().Begin(mvcc.BeginOptions{
		VocbaseID:    vb.ID(),
		Stack:        stack,
		WAL:          vb.WAL(),
		Declarations: decls,
	})
	if err != nil {
		return err
	}

	tc, err := tx.Collection(collName)
	if err != nil {
		tx.Rollback()
		return err
	}

	container := dc.MasterpointerManager().Create(key, body, revisionID, tx.ID())
	mp := container.MasterPointer()

	indexes := dc.Indexes()
	for i, idx := range indexes {
		if err := idx.Insert(tx, mp); err != nil {
			for j := 0; j < i; j++ {
				indexes[j].Forget(tx, mp)
			}
			container.Release()
			tx.Rollback()
			return err
		}
	}

	tc.RecordInsert(mp)
	container.Link()

	if err := tx.MarkDataMarkerWritten(); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := vb.WAL().Append(wal.Marker{
		Kind:         wal.DocumentInsert,
		VocbaseID:    string(vb.ID()),
		CollectionID: collName,
		Tx:           wal.TxID{Own: tx.ID().Own, Top: tx.ID().Top},
		Key:          key,
		RevisionID:   revisionID,
		Body:         body,
	}); err != nil {
		tx.Rollback()
		return fmt.Errorf("append insert marker: %w", err)
	}

	dc.RecordInsertStats(int64(len(body)))
	dc.UpdateRevisionID(revisionID)

	return tx.Commit()
}

// getDocument returns the body of the most recently inserted entry in
// the primary index's chain for key in collName. It begins no
// transaction and applies no visibility check.
func getDocument(vb *vocbase.Vocbase, collName, key string) ([]byte, error) {
	dc, ok := vb.Lookup(collName)
	if !ok {
		return nil, fmt.Errorf("collection %q not found", collName)
	}
	idx, ok := dc.Indexes()[0].(lookupper)
	if !ok {
		return nil, fmt.Errorf("collection %q has no primary index lookup", collName)
	}
	idx.RLock()
	defer idx.RUnlock()
	chain := idx.Lookup(key)
	if len(chain) == 0 {
		return nil, mvcc.ErrDocumentNotFound
	}
	return chain[len(chain)-1].Body, nil
}

// lookupper is the subset of *mvccindex.PrimaryIndex's surface getDocument
// needs; declared locally so engine.go need not import pkg/mvcc/index
// just for a type assertion target.
type lookupper interface {
	Lookup(key string) []*mvcc.MasterPointer
	RLock()
	RUnlock()
}
