package index

import (
	"strings"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

// Direction selects which side of an edge a lookup targets.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionAny
)

// EdgeIndex maintains two hash structures keyed by vertex key — one for
// the edge's "_from" endpoint (OUT lookups), one for "_to" (IN lookups)
// — per spec.md §4.3.2. Only meaningful on edge collections.
type EdgeIndex struct {
	base

	out map[string][]*mvcc.MasterPointer
	in  map[string][]*mvcc.MasterPointer
}

// NewEdgeIndex creates an EdgeIndex with id idx over the conventional
// "_from"/"_to" attribute paths.
func NewEdgeIndex(idx uint64, shapes shape.Service) *EdgeIndex {
	from := shape.NewAttributePath("_from")
	to := shape.NewAttributePath("_to")
	return &EdgeIndex{
		base: base{
			id:       idx,
			typeName: "edge",
			paths:    []shape.AttributePath{from, to},
			pathStrs: []string{from.String(), to.String()},
			unique:   false,
			sparse:   false,
			shapes:   shapes,
		},
		out: make(map[string][]*mvcc.MasterPointer),
		in:  make(map[string][]*mvcc.MasterPointer),
	}
}

// vertexKey extracts the key component from a "collection/key"
// reference value, matching the original's handle-string convention.
func vertexKey(v shape.Value) (string, bool) {
	if v.Kind != shape.KindString {
		return "", false
	}
	s := string(v.Raw)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[i+1:], true
	}
	return s, true
}

// Insert indexes mp under both its "_from" and "_to" vertex keys.
// Non-unique, so no conflict classification applies.
func (e *EdgeIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	fromVal, okFrom := e.shapes.Extract(mp.Body, e.paths[0])
	toVal, okTo := e.shapes.Extract(mp.Body, e.paths[1])
	if !okFrom || !okTo {
		return nil
	}
	fromKey, _ := vertexKey(fromVal)
	toKey, _ := vertexKey(toVal)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.out[fromKey] = append(e.out[fromKey], mp)
	e.in[toKey] = append(e.in[toKey], mp)
	return nil
}

func (e *EdgeIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error { return nil }

func (e *EdgeIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, chain := range e.out {
		e.out[key] = removePointer(chain, mp)
	}
	for key, chain := range e.in {
		e.in[key] = removePointer(chain, mp)
	}
	return nil
}

func removePointer(chain []*mvcc.MasterPointer, mp *mvcc.MasterPointer) []*mvcc.MasterPointer {
	for i, existing := range chain {
		if existing == mp {
			return append(chain[:i], chain[i+1:]...)
		}
	}
	return chain
}

func (e *EdgeIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// Lookup returns every master pointer connected to vertexKey in the
// requested direction.
func (e *EdgeIndex) Lookup(vertexKey string, dir Direction) []*mvcc.MasterPointer {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch dir {
	case DirectionOut:
		return append([]*mvcc.MasterPointer(nil), e.out[vertexKey]...)
	case DirectionIn:
		return append([]*mvcc.MasterPointer(nil), e.in[vertexKey]...)
	default:
		combined := append([]*mvcc.MasterPointer(nil), e.out[vertexKey]...)
		return append(combined, e.in[vertexKey]...)
	}
}

func (e *EdgeIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":     e.id,
		"type":   e.typeName,
		"fields": e.pathStrs,
		"unique": false,
		"sparse": false,
	}
}

func (e *EdgeIndex) Memory() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	size := 0
	for _, chain := range e.out {
		size += len(chain) * 8
	}
	for _, chain := range e.in {
		size += len(chain) * 8
	}
	return size
}
