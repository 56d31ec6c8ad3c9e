package vocbase

import (
	"fmt"
	"sync"

	"github.com/docstore/engine/pkg/collection"
	"github.com/docstore/engine/pkg/config"
	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
	"github.com/docstore/engine/pkg/ticks"
	"github.com/docstore/engine/pkg/wal"
	"github.com/rs/zerolog"
)

// Vocbase is the process-wide collection name/id registry for one
// database. It owns every collection's *collection.DocumentCollection,
// the tick service and transaction manager both are seeded from at
// open, and the shared WAL every collection's markers are appended to
// and replayed from.
type Vocbase struct {
	id   mvcc.VocbaseID
	name string

	wal    wal.Log
	shapes shape.Service
	keys   mvcc.KeyGenerator
	cfg    config.EngineConfig

	ids *ticks.Service
	txs *mvcc.TransactionManager

	mu          sync.RWMutex
	collections map[string]*collection.DocumentCollection
	nextID      uint64

	logger zerolog.Logger
}

// Open creates a Vocbase bound to walLog, declares every name in
// collectionNames as a collection (creating its DocumentCollection if
// this is the first open, or reconstructing it via Replay against
// walLog's existing markers otherwise), and seeds the tick service and
// transaction manager from the highest tick observed across every
// collection's replay, per spec.md §4.7/§4.5's interaction.
func Open(id mvcc.VocbaseID, name string, walLog wal.Log, shapes shape.Service, keys mvcc.KeyGenerator, cfg config.EngineConfig, collectionNames []string) (*Vocbase, error) {
	ids := ticks.NewService()

	vb := &Vocbase{
		id:          id,
		name:        name,
		wal:         walLog,
		shapes:      shapes,
		keys:        keys,
		cfg:         cfg,
		ids:         ids,
		collections: make(map[string]*collection.DocumentCollection),
		logger:      log.WithComponent("vocbase"),
	}

	var globalMaxTick uint64
	for _, cname := range collectionNames {
		maxTick, err := vb.openCollection(cname)
		if err != nil {
			return nil, fmt.Errorf("vocbase: open collection %s: %w", cname, err)
		}
		if maxTick > globalMaxTick {
			globalMaxTick = maxTick
		}
	}

	ids.SeedFrom(ticks.Tick(globalMaxTick))
	vb.txs = mvcc.NewTransactionManager(ids)
	vb.txs.SeedAfterReplay(globalMaxTick)

	vb.logger.Info().Str("vocbase", name).Int("collections", len(collectionNames)).
		Uint64("maxTick", globalMaxTick).Msg("vocbase opened")

	return vb, nil
}

// openCollection assigns the next collection id, creates its
// DocumentCollection, replays walLog's markers for that collection
// name, and registers it. Returns the highest tick its replay observed.
func (vb *Vocbase) openCollection(name string) (uint64, error) {
	vb.mu.Lock()
	vb.nextID++
	id := vb.nextID
	vb.mu.Unlock()

	dc := collection.NewDocumentCollection(id, name, vb.cfg.MasterpointerBlockBase, vb.cfg.MasterpointerBlockCap, vb.shapes, vb.keys)

	markers, err := vb.wal.Markers(0)
	if err != nil {
		return 0, fmt.Errorf("read markers: %w", err)
	}
	filtered := filterByCollection(markers, name)

	maxTick, err := dc.Replay(filtered)
	if err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}

	vb.mu.Lock()
	vb.collections[name] = dc
	vb.mu.Unlock()

	return maxTick, nil
}

// CreateCollection registers a brand-new, empty collection at runtime
// (no replay, since it has no prior markers). Returns an error if name
// is already registered.
func (vb *Vocbase) CreateCollection(name string) (*collection.DocumentCollection, error) {
	vb.mu.Lock()
	defer vb.mu.Unlock()

	if _, exists := vb.collections[name]; exists {
		return nil, fmt.Errorf("vocbase: collection %q already exists", name)
	}

	vb.nextID++
	dc := collection.NewDocumentCollection(vb.nextID, name, vb.cfg.MasterpointerBlockBase, vb.cfg.MasterpointerBlockCap, vb.shapes, vb.keys)
	vb.collections[name] = dc
	vb.logger.Info().Str("collection", name).Msg("collection created")
	return dc, nil
}

// DropCollection unregisters a collection by name. It does not purge
// its markers from the WAL; a collection name is never reused for a
// different id within one vocbase's lifetime.
func (vb *Vocbase) DropCollection(name string) bool {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if _, exists := vb.collections[name]; !exists {
		return false
	}
	delete(vb.collections, name)
	return true
}

// Lookup resolves name to its DocumentCollection, or ok == false if no
// such collection is registered.
func (vb *Vocbase) Lookup(name string) (*collection.DocumentCollection, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	dc, ok := vb.collections[name]
	return dc, ok
}

// CollectionNames returns every registered collection's name, in no
// particular order.
func (vb *Vocbase) CollectionNames() []string {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	names := make([]string, 0, len(vb.collections))
	for n := range vb.collections {
		names = append(names, n)
	}
	return names
}

// ID returns the vocbase's identifier.
func (vb *Vocbase) ID() mvcc.VocbaseID { return vb.id }

// Name returns the vocbase's name.
func (vb *Vocbase) Name() string { return vb.name }

// TransactionManager returns the vocbase's transaction manager, shared
// by every caller beginning a transaction against this vocbase.
func (vb *Vocbase) TransactionManager() *mvcc.TransactionManager { return vb.txs }

// WAL returns the vocbase's write-ahead log, needed by Begin callers
// that pass it through mvcc.BeginOptions.WAL.
func (vb *Vocbase) WAL() wal.Log { return vb.wal }

// Declare resolves a (name, access) list into mvcc.CollectionDeclaration
// entries by looking up each name's handle through this registry,
// returning an error naming the first collection it cannot resolve.
func (vb *Vocbase) Declare(wants []CollectionWant) ([]mvcc.CollectionDeclaration, error) {
	decls := make([]mvcc.CollectionDeclaration, 0, len(wants))
	for _, w := range wants {
		dc, ok := vb.Lookup(w.Name)
		if !ok {
			return nil, fmt.Errorf("vocbase: collection %q not found", w.Name)
		}
		decls = append(decls, mvcc.CollectionDeclaration{
			Name:   w.Name,
			Handle: dc,
			Access: w.Access,
		})
	}
	return decls, nil
}

// CollectionWant is one (name, access) pair a caller wants resolved
// into a mvcc.CollectionDeclaration via Declare.
type CollectionWant struct {
	Name   string
	Access mvcc.CollectionAccess
}
