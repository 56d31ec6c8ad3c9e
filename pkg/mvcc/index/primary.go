package index

import (
	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

// PrimaryIndex is the open-addressed key -> master pointer mapping
// every collection carries first in its index list. It is always
// unique and never sparse; its entries are the source of truth the
// master pointer manager's publication list mirrors, per spec.md
// §4.3.1.
type PrimaryIndex struct {
	base

	entries map[string][]*mvcc.MasterPointer
}

// NewPrimaryIndex creates a PrimaryIndex with id idx, keyed on "_key".
func NewPrimaryIndex(idx uint64, shapes shape.Service) *PrimaryIndex {
	path := shape.NewAttributePath("_key")
	return &PrimaryIndex{
		base: base{
			id:       idx,
			typeName: "primary",
			paths:    []shape.AttributePath{path},
			pathStrs: []string{path.String()},
			unique:   true,
			sparse:   false,
			shapes:   shapes,
		},
		entries: make(map[string][]*mvcc.MasterPointer),
	}
}

// Insert applies the unique write-conflict truth table against every
// existing entry sharing mp.Key and, if none block it, appends mp to
// that key's version chain.
func (p *PrimaryIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.entries[mp.Key] {
		ignore, err := classifyAgainst(tx, existing)
		if err != nil {
			return err
		}
		if !ignore {
			return err
		}
	}

	p.entries[mp.Key] = append(p.entries[mp.Key], mp)
	return nil
}

// Remove is a no-op: the primary index's membership is the master
// pointer manager's own publication list. Entries are dropped lazily
// from the version chain by Forget or garbage collection, never
// eagerly by Remove.
func (p *PrimaryIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	return nil
}

// Forget erases mp from its key's version chain after a rolled-back
// insert.
func (p *PrimaryIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chain := p.entries[mp.Key]
	for i, existing := range chain {
		if existing == mp {
			p.entries[mp.Key] = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(p.entries[mp.Key]) == 0 {
		delete(p.entries, mp.Key)
	}
	return nil
}

// PreCommit is a no-op: the primary index applies changes immediately
// on Insert.
func (p *PrimaryIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// ReplaySet installs mp as the sole entry for its key, overwriting any
// prior entry. Used only by pkg/collection's OpenIterator while
// reconstructing a collection at open, where there is no live
// transaction to classify conflicts against: replay has already
// resolved which revision wins per spec.md §4.7's marker-dispatch
// table before calling this.
func (p *PrimaryIndex) ReplaySet(key string, mp *mvcc.MasterPointer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = []*mvcc.MasterPointer{mp}
}

// ReplayDelete removes key's entry entirely. Used only by OpenIterator
// when replaying a DocumentRemove marker.
func (p *PrimaryIndex) ReplayDelete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

// Lookup returns the version chain for key, for the document-read path.
func (p *PrimaryIndex) Lookup(key string) []*mvcc.MasterPointer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*mvcc.MasterPointer(nil), p.entries[key]...)
}

func (p *PrimaryIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":     p.id,
		"type":   p.typeName,
		"fields": p.pathStrs,
		"unique": true,
		"sparse": false,
	}
}

func (p *PrimaryIndex) Memory() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	size := 0
	for key, chain := range p.entries {
		size += len(key) + len(chain)*8
	}
	return size
}
