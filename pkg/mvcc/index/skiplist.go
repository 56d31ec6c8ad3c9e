package index

import (
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
	"github.com/google/btree"
)

// OpKind names one leaf or combinator in a SkiplistIndex query's
// composite operator tree, per spec.md §4.3.4.
type OpKind int

const (
	OpEQ OpKind = iota
	OpLT
	OpLE
	OpGT
	OpGE
	OpAND
)

// Op is one node of the composite operator tree a SkiplistIndex query
// is built from. Leaf kinds (EQ/LT/LE/GT/GE) carry Values, one per
// indexed path, left to right; OpAND combines Children.
type Op struct {
	Kind     OpKind
	Values   []shape.Value
	Children []Op
}

// maxSkiplistKey sorts after any realistic document key; used only to
// build exclusive upper-bound probe entries.
const maxSkiplistKey = "\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"

type skiplistEntry struct {
	values   []shape.Value
	key      string
	revision uint64
	mp       *mvcc.MasterPointer
}

func skiplistLess(a, b *skiplistEntry) bool {
	for i := 0; i < len(a.values) && i < len(b.values); i++ {
		c := shape.Compare(a.values[i], b.values[i])
		if c != 0 {
			return c < 0
		}
	}
	if a.key != b.key {
		return a.key < b.key
	}
	return a.revision < b.revision
}

// SkiplistIndex orders records by the composite shape-aware comparator
// over its indexed paths, appending (key, revision) as a tiebreaker so
// every record occupies a unique position even in a non-unique index,
// per spec.md §4.3.4. Backed by an in-memory B-tree (the ordered
// structure the original expresses as a skip list) since both give the
// same O(log n) ordered-insert/range-scan shape and the example corpus
// ships a B-tree, not a skip list, as its off-the-shelf ordered
// container.
type SkiplistIndex struct {
	base

	tree *btree.BTreeG[*skiplistEntry]
}

// NewSkiplistIndex creates a SkiplistIndex with id idx over paths.
func NewSkiplistIndex(idx uint64, paths []shape.AttributePath, unique, sparse bool, shapes shape.Service) *SkiplistIndex {
	return &SkiplistIndex{
		base: base{
			id:       idx,
			typeName: "skiplist",
			paths:    paths,
			pathStrs: pathStrings(paths),
			unique:   unique,
			sparse:   sparse,
			shapes:   shapes,
		},
		tree: btree.NewG(32, skiplistLess),
	}
}

// Insert extracts s's paths from mp.Body and inserts an ordered entry.
// Sparse exclusion is a silent no-op; a non-sparse index still orders a
// record missing one of its paths, treating the missing path as a JSON
// null value. Unique indexes apply the write-conflict truth table
// against every entry already occupying the exact same composite value
// before inserting.
func (s *SkiplistIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	if s.excludedBySparse(mp.Body) {
		return nil
	}
	values := s.extractAllOrNull(mp.Body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unique {
		lower := &skiplistEntry{values: values, key: ""}
		upper := &skiplistEntry{values: values, key: maxSkiplistKey, revision: ^uint64(0)}
		var conflict error
		s.tree.AscendRange(lower, upper, func(existing *skiplistEntry) bool {
			ignore, err := classifyAgainst(tx, existing.mp)
			if err != nil {
				conflict = err
				return false
			}
			_ = ignore
			return true
		})
		if conflict != nil {
			return conflict
		}
	}

	s.tree.ReplaceOrInsert(&skiplistEntry{values: values, key: mp.Key, revision: mp.RevisionID, mp: mp})
	return nil
}

func (s *SkiplistIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error { return nil }

func (s *SkiplistIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	if s.excludedBySparse(mp.Body) {
		return nil
	}
	values := s.extractAllOrNull(mp.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(&skiplistEntry{values: values, key: mp.Key, revision: mp.RevisionID})
	return nil
}

func (s *SkiplistIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// Query evaluates op's operator tree and returns matching master
// pointers in ascending composite order, or descending if reverse is
// set. AND is evaluated by tightening the scan range to the
// intersection of every leaf's bound; this is exact for a single-level
// AND of range/equality leaves, which is the shape spec.md §4.3.4
// calls for.
func (s *SkiplistIndex) Query(op Op, reverse bool) []*mvcc.MasterPointer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower, upper := s.bounds(op)

	var out []*mvcc.MasterPointer
	collect := func(e *skiplistEntry) bool {
		out = append(out, e.mp)
		return true
	}

	switch {
	case lower != nil && upper != nil:
		if reverse {
			s.tree.DescendRange(upper, lower, collect)
		} else {
			s.tree.AscendRange(lower, upper, collect)
		}
	case lower != nil:
		if reverse {
			s.tree.DescendGreaterThan(lower, collect)
		} else {
			s.tree.AscendGreaterOrEqual(lower, collect)
		}
	case upper != nil:
		if reverse {
			s.tree.DescendLessOrEqual(upper, collect)
		} else {
			s.tree.AscendLessThan(upper, collect)
		}
	default:
		if reverse {
			s.tree.Descend(collect)
		} else {
			s.tree.Ascend(collect)
		}
	}

	return out
}

// bounds computes the [lower, upper) probe pair tightest enough to
// cover op's operator tree. nil means unbounded on that side.
func (s *SkiplistIndex) bounds(op Op) (lower, upper *skiplistEntry) {
	switch op.Kind {
	case OpEQ:
		return &skiplistEntry{values: op.Values, key: ""},
			&skiplistEntry{values: op.Values, key: maxSkiplistKey, revision: ^uint64(0)}
	case OpGE:
		return &skiplistEntry{values: op.Values, key: ""}, nil
	case OpGT:
		return &skiplistEntry{values: op.Values, key: maxSkiplistKey, revision: ^uint64(0)}, nil
	case OpLE:
		return nil, &skiplistEntry{values: op.Values, key: maxSkiplistKey, revision: ^uint64(0)}
	case OpLT:
		return nil, &skiplistEntry{values: op.Values, key: ""}
	case OpAND:
		for _, child := range op.Children {
			cl, cu := s.bounds(child)
			if cl != nil && (lower == nil || skiplistLess(lower, cl)) {
				lower = cl
			}
			if cu != nil && (upper == nil || skiplistLess(cu, upper)) {
				upper = cu
			}
		}
		return lower, upper
	default:
		return nil, nil
	}
}

func (s *SkiplistIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":     s.id,
		"type":   s.typeName,
		"fields": s.pathStrs,
		"unique": s.unique,
		"sparse": s.sparse,
	}
}

func (s *SkiplistIndex) Memory() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len() * 32
}
