package mvcc

// CollectionStats holds the per-(transaction, collection) counters a
// Transaction accumulates as it mutates a collection. Merging two
// stats (nested commit folding a child's stats into its parent) is
// additive for counts, takes the max for revisionId, and ORs
// waitForSync.
type CollectionStats struct {
	NumInserted int64
	NumRemoved  int64
	RevisionID  uint64
	WaitForSync bool
}

// Merge folds other into s in place.
func (s *CollectionStats) Merge(other CollectionStats) {
	s.NumInserted += other.NumInserted
	s.NumRemoved += other.NumRemoved
	if other.RevisionID > s.RevisionID {
		s.RevisionID = other.RevisionID
	}
	s.WaitForSync = s.WaitForSync || other.WaitForSync
}
