package vocbase

import "github.com/docstore/engine/pkg/wal"

// collectionFilter wraps a wal.Iterator and yields only the markers
// belonging to one collection, so a shared, multi-collection WAL can
// still feed collection.DocumentCollection.Replay, which expects a
// single collection's marker stream. Markers with no CollectionID
// (Begin/Commit/Abort, which are vocbase-wide) pass through every
// filter, so each collection's replay still sees the transaction
// boundaries its data markers are buffered against.
type collectionFilter struct {
	underlying wal.Iterator
	name       string
}

func filterByCollection(it wal.Iterator, name string) *collectionFilter {
	return &collectionFilter{underlying: it, name: name}
}

func (f *collectionFilter) Next() (wal.Marker, bool) {
	for {
		m, ok := f.underlying.Next()
		if !ok {
			return wal.Marker{}, false
		}
		if m.CollectionID == f.name || m.CollectionID == "" {
			return m, true
		}
	}
}

func (f *collectionFilter) Close() error {
	return f.underlying.Close()
}
