package index

import (
	"strings"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

// HashIndex is a (paths, unique, sparse)-parameterized hash index, per
// spec.md §4.3.3. Equality is computed from the payload bytes of each
// path only (not the shape type id), so values of different shapes
// that happen to share byte-identical payloads still collide, matching
// the original's cross-shape equality rule; the actual acceptance test
// re-checks each path with shape.Equal (shape kind + byte length +
// payload).
type HashIndex struct {
	base

	entries map[string][]*mvcc.MasterPointer
}

// NewHashIndex creates a HashIndex with id idx over paths.
func NewHashIndex(idx uint64, paths []shape.AttributePath, unique, sparse bool, shapes shape.Service) *HashIndex {
	return &HashIndex{
		base: base{
			id:       idx,
			typeName: "hash",
			paths:    paths,
			pathStrs: pathStrings(paths),
			unique:   unique,
			sparse:   sparse,
			shapes:   shapes,
		},
		entries: make(map[string][]*mvcc.MasterPointer),
	}
}

// hashKey builds the bucket key from a record's extracted path values:
// the raw payload bytes only, joined by a NUL separator that cannot
// appear in any path's own encoding.
func hashKey(values []shape.Value) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(0)
		}
		b.Write(v.Raw)
	}
	return b.String()
}

// Insert extracts h's paths from mp.Body. A sparse index excluding the
// record is a silent no-op, not an error; a non-sparse index still
// indexes a record missing one of its paths, treating the missing path
// as a JSON null value. For unique indexes every existing entry
// sharing the bucket key is re-checked against the extracted values
// with shape.Equal before the write-conflict truth table applies, so
// byte-payload collisions across incompatible shapes never falsely
// conflict.
func (h *HashIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	if h.excludedBySparse(mp.Body) {
		return nil
	}

	values := h.extractAllOrNull(mp.Body)
	key := hashKey(values)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unique {
		for _, existing := range h.entries[key] {
			existingValues := h.extractAllOrNull(existing.Body)
			if !valuesEqual(existingValues, values) {
				continue
			}
			ignore, err := classifyAgainst(tx, existing)
			if err != nil {
				return err
			}
			if !ignore {
				return err
			}
		}
	}

	h.entries[key] = append(h.entries[key], mp)
	return nil
}

func valuesEqual(a, b []shape.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !shape.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (h *HashIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error { return nil }

func (h *HashIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, chain := range h.entries {
		h.entries[key] = removePointer(chain, mp)
	}
	return nil
}

func (h *HashIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// Lookup returns candidates whose bucket key matches values; callers
// must still filter by visibility.
func (h *HashIndex) Lookup(values []shape.Value) []*mvcc.MasterPointer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*mvcc.MasterPointer(nil), h.entries[hashKey(values)]...)
}

func (h *HashIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":     h.id,
		"type":   h.typeName,
		"fields": h.pathStrs,
		"unique": h.unique,
		"sparse": h.sparse,
	}
}

func (h *HashIndex) Memory() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	size := 0
	for key, chain := range h.entries {
		size += len(key) + len(chain)*8
	}
	return size
}
