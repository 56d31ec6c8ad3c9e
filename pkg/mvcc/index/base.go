package index

import (
	"sync"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

// base carries the fields every index variant shares: identity, the
// attribute paths it is built over, the unique/sparse flags, and the
// structure-guarding lock spec.md §4.3's "clickLock" introspection
// helper maps onto. Variants embed it and add their own payload.
type base struct {
	mu sync.RWMutex

	id       uint64
	typeName string
	paths    []shape.AttributePath
	pathStrs []string
	unique   bool
	sparse   bool
	shapes   shape.Service
}

func (b *base) ID() uint64         { return b.id }
func (b *base) TypeName() string   { return b.typeName }
func (b *base) Paths() []string    { return b.pathStrs }
func (b *base) Unique() bool       { return b.unique }
func (b *base) Sparse() bool       { return b.sparse }
func (b *base) Lock()              { b.mu.Lock() }
func (b *base) Unlock()            { b.mu.Unlock() }
func (b *base) RLock()             { b.mu.RLock() }
func (b *base) RUnlock()           { b.mu.RUnlock() }

// extractAll pulls every configured path's value out of body. ok is
// false if any path is missing; callers treat that as "excluded" for
// sparse indexes, while non-sparse indexes use extractAllOrNull instead.
func (b *base) extractAll(body []byte) ([]shape.Value, bool) {
	values := make([]shape.Value, len(b.paths))
	for i, p := range b.paths {
		v, ok := b.shapes.Extract(body, p)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// nullValue is the Value substituted for a missing path by
// extractAllOrNull, matching shape.NullShapeID's reservation for JSON
// null.
var nullValue = shape.Value{Kind: shape.KindNull, ShapeID: shape.NullShapeID}

// extractAllOrNull is like extractAll but never reports a missing path
// as exclusion: a missing path's value is nullValue instead. Non-sparse
// indexes must still index a record with a missing path (only sparse
// indexes exclude it, via excludedBySparse), so hash/skiplist call this
// instead of extractAll once the sparse gate has already run.
func (b *base) extractAllOrNull(body []byte) []shape.Value {
	values := make([]shape.Value, len(b.paths))
	for i, p := range b.paths {
		v, ok := b.shapes.Extract(body, p)
		if !ok {
			v = nullValue
		}
		values[i] = v
	}
	return values
}

// excludedBySparse reports whether body should be excluded from a
// sparse index: any configured path missing, or present but null,
// excludes the record per spec.md §4.3.3.
func (b *base) excludedBySparse(body []byte) bool {
	if !b.sparse {
		return false
	}
	values, ok := b.extractAll(body)
	if !ok {
		return true
	}
	for _, v := range values {
		if v.IsNull() {
			return true
		}
	}
	return false
}

func pathStrings(paths []shape.AttributePath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

// classifyAgainst applies the unique-index write-conflict truth table
// (mvcc.ClassifyUniqueConflict) for one existing entry against tx.
func classifyAgainst(tx *mvcc.Transaction, existing *mvcc.MasterPointer) (ignore bool, err error) {
	from := tx.Visibility(existing.From)
	to := tx.Visibility(existing.To)
	return mvcc.ClassifyUniqueConflict(from, to)
}
