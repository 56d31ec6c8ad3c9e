package collection

import (
	"testing"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
	"github.com/docstore/engine/pkg/wal"
)

// sliceIterator replays a fixed slice of markers, for tests that need a
// wal.Iterator without a real log.
type sliceIterator struct {
	markers []wal.Marker
	pos     int
}

func (it *sliceIterator) Next() (wal.Marker, bool) {
	if it.pos >= len(it.markers) {
		return wal.Marker{}, false
	}
	m := it.markers[it.pos]
	it.pos++
	return m, true
}

func (it *sliceIterator) Close() error { return nil }

func newTestCollection(t *testing.T) *DocumentCollection {
	t.Helper()
	shapes := shape.NewInMemoryService()
	return NewDocumentCollection(1, "docs", 4, 16, shapes, mvcc.UUIDKeyGenerator{})
}

func TestReplayNewKeyInserts(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.DocumentInsert, Tick: 1, DatafileID: 1, Key: "a", RevisionID: 1, Body: []byte(`{"_key":"a"}`)},
	}

	maxTick, err := c.Replay(&sliceIterator{markers: markers})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if maxTick != 1 {
		t.Fatalf("maxTick = %d, want 1", maxTick)
	}
	if c.DocumentCount() != 1 {
		t.Fatalf("documentCount = %d, want 1", c.DocumentCount())
	}
	chain := c.primaryIndex().Lookup("a")
	if len(chain) != 1 {
		t.Fatalf("expected 1 entry for key a, got %d", len(chain))
	}
	if chain[0].RevisionID != 1 {
		t.Fatalf("revision = %d, want 1", chain[0].RevisionID)
	}
}

func TestReplaySupersedingKeyWins(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.DocumentInsert, Tick: 1, DatafileID: 1, Key: "a", RevisionID: 1, Body: []byte(`{"_key":"a","v":1}`)},
		{Kind: wal.DocumentInsert, Tick: 2, DatafileID: 2, Key: "a", RevisionID: 2, Body: []byte(`{"_key":"a","v":2}`)},
	}

	if _, err := c.Replay(&sliceIterator{markers: markers}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if c.DocumentCount() != 1 {
		t.Fatalf("documentCount = %d, want 1 (superseded key collapses to one live doc)", c.DocumentCount())
	}
	chain := c.primaryIndex().Lookup("a")
	if len(chain) != 1 || chain[0].RevisionID != 2 {
		t.Fatalf("expected surviving entry to be revision 2, got %+v", chain)
	}
}

func TestReplayLosingKeyMarksDead(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.DocumentInsert, Tick: 2, DatafileID: 2, Key: "a", RevisionID: 2, Body: []byte(`{"_key":"a","v":2}`)},
		{Kind: wal.DocumentInsert, Tick: 1, DatafileID: 1, Key: "a", RevisionID: 1, Body: []byte(`{"_key":"a","v":1}`)},
	}

	if _, err := c.Replay(&sliceIterator{markers: markers}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	chain := c.primaryIndex().Lookup("a")
	if len(chain) != 1 || chain[0].RevisionID != 2 {
		t.Fatalf("expected revision 2 to remain the winner, got %+v", chain)
	}
	stats, ok := c.DatafileStats(1)
	if !ok {
		t.Fatal("expected datafile 1 stats to be recorded")
	}
	if stats.NumberDead != 1 {
		t.Fatalf("datafile 1 NumberDead = %d, want 1 (later-arriving lower revision is dead on arrival)", stats.NumberDead)
	}
}

func TestReplayDocumentRemove(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.DocumentInsert, Tick: 1, DatafileID: 1, Key: "a", RevisionID: 1, Body: []byte(`{"_key":"a"}`)},
		{Kind: wal.DocumentRemove, Tick: 2, DatafileID: 1, Key: "a", RevisionID: 2},
	}

	if _, err := c.Replay(&sliceIterator{markers: markers}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if c.DocumentCount() != 0 {
		t.Fatalf("documentCount = %d, want 0 after remove", c.DocumentCount())
	}
	if chain := c.primaryIndex().Lookup("a"); len(chain) != 0 {
		t.Fatalf("expected key a to be gone, got %+v", chain)
	}
	stats, ok := c.DatafileStats(1)
	if !ok {
		t.Fatal("expected datafile 1 stats")
	}
	if stats.NumberDeletions != 1 {
		t.Fatalf("NumberDeletions = %d, want 1", stats.NumberDeletions)
	}
}

func TestReplayShapeAndAttributeRegistration(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.ShapeRegister, Tick: 1, DatafileID: 1, Body: []byte(`{"kind":"object"}`)},
		{Kind: wal.AttributeRegister, Tick: 2, DatafileID: 1, Body: []byte(`{"name":"city"}`)},
	}

	if _, err := c.Replay(&sliceIterator{markers: markers}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	stats, ok := c.DatafileStats(1)
	if !ok {
		t.Fatal("expected datafile 1 stats")
	}
	if stats.NumberShapes != 1 || stats.NumberAttributes != 1 {
		t.Fatalf("stats = %+v, want 1 shape and 1 attribute", stats)
	}
}

func TestReplaySkipsAbortedTransactionsData(t *testing.T) {
	c := newTestCollection(t)
	tx10 := wal.TxID{Own: 10, Top: 10}
	tx11 := wal.TxID{Own: 11, Top: 11}
	markers := []wal.Marker{
		{Kind: wal.BeginTransaction, Tick: 1, DatafileID: 1, Tx: tx10},
		{Kind: wal.DocumentInsert, Tick: 2, DatafileID: 1, Tx: tx10, Key: "a", RevisionID: 1, Body: []byte(`{"_key":"a"}`)},
		{Kind: wal.CommitTransaction, Tick: 3, DatafileID: 1, Tx: tx10},
		{Kind: wal.BeginTransaction, Tick: 4, DatafileID: 1, Tx: tx11},
		{Kind: wal.DocumentRemove, Tick: 5, DatafileID: 1, Tx: tx11, Key: "a", RevisionID: 2},
		{Kind: wal.AbortTransaction, Tick: 6, DatafileID: 1, Tx: tx11},
	}

	maxTick, err := c.Replay(&sliceIterator{markers: markers})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if maxTick != 6 {
		t.Fatalf("maxTick = %d, want 6 (abort still counts for tick range)", maxTick)
	}
	if c.DocumentCount() != 1 {
		t.Fatalf("documentCount = %d, want 1 (aborted remove must not apply)", c.DocumentCount())
	}
	chain := c.primaryIndex().Lookup("a")
	if len(chain) != 1 || chain[0].RevisionID != 1 {
		t.Fatalf("expected key a to survive at revision 1, got %+v", chain)
	}
}

func TestReplayTickRangeSpansStructuralMarkers(t *testing.T) {
	c := newTestCollection(t)
	markers := []wal.Marker{
		{Kind: wal.BeginTransaction, Tick: 1, DatafileID: 1},
		{Kind: wal.DocumentInsert, Tick: 2, DatafileID: 1, Key: "a", RevisionID: 1, Body: []byte(`{}`)},
		{Kind: wal.CommitTransaction, Tick: 3, DatafileID: 1},
	}

	maxTick, err := c.Replay(&sliceIterator{markers: markers})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if maxTick != 3 {
		t.Fatalf("maxTick = %d, want 3 (structural markers still count for the datafile's overall range)", maxTick)
	}
	stats, ok := c.DatafileStats(1)
	if !ok {
		t.Fatal("expected datafile 1 stats")
	}
	if stats.MinTick != 1 || stats.MaxTick != 3 {
		t.Fatalf("tick range = [%d,%d], want [1,3]", stats.MinTick, stats.MaxTick)
	}
	if stats.DataMinTick != 2 || stats.DataMaxTick != 2 {
		t.Fatalf("data tick range = [%d,%d], want [2,2] (only the data marker counts)", stats.DataMinTick, stats.DataMaxTick)
	}
}
