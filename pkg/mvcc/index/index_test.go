package index

import (
	"strconv"
	"testing"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
	"github.com/docstore/engine/pkg/ticks"
	"github.com/docstore/engine/pkg/wal"
)

func newTx(t *testing.T, mgr *mvcc.TransactionManager, vocbase mvcc.VocbaseID) *mvcc.Transaction {
	t.Helper()
	tx, err := mgr.Begin(mvcc.BeginOptions{VocbaseID: vocbase})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

// fakeWAL is a minimal in-memory wal.Log that just records every
// appended marker, for tests that need to assert on what was written
// without a real bbolt-backed log.
type fakeWAL struct {
	appended []wal.Marker
	tick     uint64
}

func (f *fakeWAL) Append(m wal.Marker) (uint64, error) {
	f.tick++
	m.Tick = f.tick
	f.appended = append(f.appended, m)
	return f.tick, nil
}

func (f *fakeWAL) Markers(from uint64) (wal.Iterator, error) { return &fakeWALIterator{}, nil }
func (f *fakeWAL) Throttled() bool                           { return false }
func (f *fakeWAL) MaxTick() uint64                            { return f.tick }
func (f *fakeWAL) Close() error                               { return nil }

type fakeWALIterator struct{}

func (it *fakeWALIterator) Next() (wal.Marker, bool) { return wal.Marker{}, false }
func (it *fakeWALIterator) Close() error             { return nil }

func TestPrimaryIndexUniqueConflict(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	pidx := NewPrimaryIndex(1, shapes)

	tx1 := newTx(t, mgr, "db1")
	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	c1 := mpMgr.Create("k1", []byte(`{"_key":"k1"}`), 1, tx1.ID())
	if err := pidx.Insert(tx1, c1.MasterPointer()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	c1.Link()
	if err := tx1.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2 := newTx(t, mgr, "db1")
	c2 := mpMgr.Create("k1", []byte(`{"_key":"k1"}`), 2, tx2.ID())
	err := pidx.Insert(tx2, c2.MasterPointer())
	if err == nil {
		t.Fatal("expected unique constraint violation on duplicate key")
	}
}

func TestHashIndexSparseExcludesMissingPath(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	hidx := NewHashIndex(2, []shape.AttributePath{shape.NewAttributePath("email")}, true, true, shapes)

	tx := newTx(t, mgr, "db1")
	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	c := mpMgr.Create("k1", []byte(`{"name":"no email here"}`), 1, tx.ID())

	if err := hidx.Insert(tx, c.MasterPointer()); err != nil {
		t.Fatalf("sparse insert with missing path should be a no-op, got %v", err)
	}
	if got := hidx.Memory(); got != 0 {
		t.Fatalf("expected no entries indexed, memory=%d", got)
	}
}

func TestHashIndexNonSparseIndexesMissingPath(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	hidx := NewHashIndex(2, []shape.AttributePath{shape.NewAttributePath("email")}, false, false, shapes)

	tx := newTx(t, mgr, "db1")
	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	c := mpMgr.Create("k1", []byte(`{"name":"no email here"}`), 1, tx.ID())

	if err := hidx.Insert(tx, c.MasterPointer()); err != nil {
		t.Fatalf("non-sparse insert with missing path: %v", err)
	}
	if got := hidx.Memory(); got == 0 {
		t.Fatal("expected the record to be indexed despite the missing path")
	}
	if got := hidx.Lookup([]shape.Value{nullValue}); len(got) != 1 {
		t.Fatalf("expected missing path to be indexed under the null value, got %d entries", len(got))
	}
}

func TestHashIndexUniqueConflict(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	hidx := NewHashIndex(2, []shape.AttributePath{shape.NewAttributePath("email")}, true, false, shapes)

	tx1 := newTx(t, mgr, "db1")
	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	c1 := mpMgr.Create("k1", []byte(`{"email":"a@example.com"}`), 1, tx1.ID())
	if err := hidx.Insert(tx1, c1.MasterPointer()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tx1.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2 := newTx(t, mgr, "db1")
	c2 := mpMgr.Create("k2", []byte(`{"email":"a@example.com"}`), 2, tx2.ID())
	if err := hidx.Insert(tx2, c2.MasterPointer()); err == nil {
		t.Fatal("expected unique constraint violation on duplicate email")
	}
}

func TestSkiplistIndexRangeQuery(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	sidx := NewSkiplistIndex(3, []shape.AttributePath{shape.NewAttributePath("age")}, false, false, shapes)

	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	ages := []int{10, 20, 30, 40, 50}
	for i, age := range ages {
		tx := newTx(t, mgr, "db1")
		c := mpMgr.Create(string(rune('a'+i)), []byte(`{"age":`+itoa(age)+`}`), uint64(i+1), tx.ID())
		if err := sidx.Insert(tx, c.MasterPointer()); err != nil {
			t.Fatalf("insert age=%d: %v", age, err)
		}
		_ = tx.Commit()
	}

	geVal, _ := shapes.Extract([]byte(`{"age":25}`), shape.NewAttributePath("age"))
	results := sidx.Query(Op{Kind: OpGE, Values: []shape.Value{geVal}}, false)
	if len(results) != 3 {
		t.Fatalf("expected 3 results for age>=25, got %d", len(results))
	}

	leVal, _ := shapes.Extract([]byte(`{"age":30}`), shape.NewAttributePath("age"))
	and := Op{Kind: OpAND, Children: []Op{
		{Kind: OpGE, Values: []shape.Value{geVal}},
		{Kind: OpLE, Values: []shape.Value{leVal}},
	}}
	results = sidx.Query(and, false)
	if len(results) != 1 {
		t.Fatalf("expected 1 result for 25<=age<=30, got %d", len(results))
	}
}

func TestSkiplistIndexNonSparseIndexesMissingPath(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	sidx := NewSkiplistIndex(3, []shape.AttributePath{shape.NewAttributePath("age")}, false, false, shapes)

	mpMgr := mvcc.NewMasterpointerManager("users", 4, 16)
	tx := newTx(t, mgr, "db1")
	c := mpMgr.Create("noage", []byte(`{"name":"no age here"}`), 1, tx.ID())
	if err := sidx.Insert(tx, c.MasterPointer()); err != nil {
		t.Fatalf("non-sparse insert with missing path: %v", err)
	}
	_ = tx.Commit()

	if got := sidx.Memory(); got == 0 {
		t.Fatal("expected the record to be indexed despite the missing path")
	}

	results := sidx.Query(Op{Kind: OpEQ, Values: []shape.Value{nullValue}}, false)
	if len(results) != 1 {
		t.Fatalf("expected 1 result for age==null, got %d", len(results))
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestGeoIndexNearAndWithin(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	gidx := NewGeoIndexSeparate(4, shape.NewAttributePath("lat"), shape.NewAttributePath("lon"), shapes)

	mpMgr := mvcc.NewMasterpointerManager("places", 4, 16)
	points := []struct{ lat, lon float64 }{
		{40.7128, -74.0060}, // New York
		{34.0522, -118.2437}, // Los Angeles
		{41.8781, -87.6298}, // Chicago
	}
	for i, p := range points {
		tx := newTx(t, mgr, "db1")
		body := []byte(`{"lat":` + floatStr(p.lat) + `,"lon":` + floatStr(p.lon) + `}`)
		c := mpMgr.Create(string(rune('a'+i)), body, uint64(i+1), tx.ID())
		if err := gidx.Insert(tx, c.MasterPointer()); err != nil {
			t.Fatalf("insert: %v", err)
		}
		_ = tx.Commit()
	}

	near := gidx.Near(40.7128, -74.0060, 1)
	if len(near) != 1 {
		t.Fatalf("expected 1 nearest result, got %d", len(near))
	}
	if near[0].DistanceMeters > 1 {
		t.Fatalf("expected near-zero distance to exact match, got %f", near[0].DistanceMeters)
	}

	within := gidx.Within(40.7128, -74.0060, 2_000_000)
	if len(within) < 2 {
		t.Fatalf("expected at least 2 points within 2000km of New York, got %d", len(within))
	}
}

func floatStr(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func itoa64(n int64) string {
	return itoa(int(n))
}

func TestFulltextIndexConjunctionAndExclusion(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	fidx := NewFulltextIndex(5, shape.NewAttributePath("body"), 3, shapes)

	mpMgr := mvcc.NewMasterpointerManager("articles", 4, 16)
	docs := []string{
		"the quick brown fox",
		"the lazy dog sleeps",
		"quick foxes are clever",
	}
	for i, text := range docs {
		tx := newTx(t, mgr, "db1")
		c := mpMgr.Create(string(rune('a'+i)), []byte(`{"body":"`+text+`"}`), uint64(i+1), tx.ID())
		if err := fidx.Insert(tx, c.MasterPointer()); err != nil {
			t.Fatalf("insert: %v", err)
		}
		_ = tx.Commit()
	}

	results := fidx.Query([]QueryTerm{{Word: "quick", Kind: QueryAND}})
	if len(results) != 2 {
		t.Fatalf("expected 2 documents containing 'quick', got %d", len(results))
	}

	results = fidx.Query([]QueryTerm{
		{Word: "quick", Kind: QueryAND},
		{Word: "dog", Kind: QueryNOT},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 documents containing 'quick' and not 'dog', got %d", len(results))
	}
}

func TestCapConstraintRejectsOversizedDocument(t *testing.T) {
	shapes := shape.NewInMemoryService()
	_ = shapes
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	mpMgr := mvcc.NewMasterpointerManager("logs", 4, 16)
	capIdx := NewCapConstraint(6, 0, 10, mpMgr, nil, nil, "db1", "logs", nil)

	tx := newTx(t, mgr, "db1")
	c := mpMgr.Create("k1", []byte(`{"this body exceeds ten bytes"}`), 1, tx.ID())
	if err := capIdx.Insert(tx, c.MasterPointer()); err == nil {
		t.Fatal("expected DocumentTooLarge for oversized insert")
	}
}

// fakeRemoveStatsRecorder records every RecordRemoveStats call's size,
// standing in for *collection.DocumentCollection in tests that must
// stay within pkg/mvcc/index (importing pkg/collection here would
// cycle back, since it imports this package).
type fakeRemoveStatsRecorder struct {
	removed []int64
}

func (f *fakeRemoveStatsRecorder) RecordRemoveStats(size int64) {
	f.removed = append(f.removed, size)
}

func TestCapConstraintEvictsOldestOnPreCommit(t *testing.T) {
	shapes := shape.NewInMemoryService()
	mgr := mvcc.NewTransactionManager(ticks.NewService())
	mpMgr := mvcc.NewMasterpointerManager("logs", 4, 16)
	pidx := NewPrimaryIndex(1, shapes)
	walLog := &fakeWAL{}
	stats := &fakeRemoveStatsRecorder{}
	capIdx := NewCapConstraint(2, 2, 0, mpMgr, []mvcc.Index{pidx}, walLog, "db1", "logs", stats)

	for i := 0; i < 3; i++ {
		tx := newTx(t, mgr, "db1")
		c := mpMgr.Create(string(rune('a'+i)), []byte(`{}`), uint64(i+1), tx.ID())
		if err := pidx.Insert(tx, c.MasterPointer()); err != nil {
			t.Fatalf("primary insert: %v", err)
		}
		if err := capIdx.Insert(tx, c.MasterPointer()); err != nil {
			t.Fatalf("cap insert: %v", err)
		}
		c.Link()
		if err := capIdx.PreCommit(tx); err != nil {
			t.Fatalf("precommit: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	if got := mpMgr.LiveCount(); got != 2 {
		t.Fatalf("expected cap constraint to keep live count at 2, got %d", got)
	}
	if len(stats.removed) != 1 {
		t.Fatalf("expected 1 eviction recorded through RecordRemoveStats, got %d", len(stats.removed))
	}
	if len(walLog.appended) != 1 || walLog.appended[0].Kind != wal.DocumentRemove {
		t.Fatalf("expected 1 DocumentRemove marker appended for the eviction, got %+v", walLog.appended)
	}
	if walLog.appended[0].Key != "a" {
		t.Fatalf("expected the oldest key 'a' to be the one evicted, got %q", walLog.appended[0].Key)
	}
}
