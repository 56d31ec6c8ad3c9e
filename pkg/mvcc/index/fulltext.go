package index

import (
	"strings"
	"unicode"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

// FulltextIndex tokenizes a single string path into words at least
// minWordLength long and indexes each word to the set of master
// pointers containing it, per spec.md §4.3.6. The tokenizer lower-
// cases and strips punctuation, matching the original's TRI_normalize
// helper.
type FulltextIndex struct {
	base

	minWordLength int
	words         map[string]map[*mvcc.MasterPointer]struct{}
}

// NewFulltextIndex creates a FulltextIndex with id idx over path.
func NewFulltextIndex(idx uint64, path shape.AttributePath, minWordLength int, shapes shape.Service) *FulltextIndex {
	if minWordLength <= 0 {
		minWordLength = 2
	}
	return &FulltextIndex{
		base: base{
			id:       idx,
			typeName: "fulltext",
			paths:    []shape.AttributePath{path},
			pathStrs: []string{path.String()},
			unique:   false,
			sparse:   true,
			shapes:   shapes,
		},
		minWordLength: minWordLength,
		words:         make(map[string]map[*mvcc.MasterPointer]struct{}),
	}
}

// tokenize lower-cases s, splits on anything that is not a letter or
// digit, and drops words shorter than minWordLength.
func tokenize(s string, minWordLength int) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= minWordLength {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Insert extracts f's path as a string and indexes each tokenized
// word. Non-string or missing values exclude the record.
func (f *FulltextIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	v, ok := f.shapes.Extract(mp.Body, f.paths[0])
	if !ok || v.Kind != shape.KindString {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, word := range tokenize(string(v.Raw), f.minWordLength) {
		set, ok := f.words[word]
		if !ok {
			set = make(map[*mvcc.MasterPointer]struct{})
			f.words[word] = set
		}
		set[mp] = struct{}{}
	}
	return nil
}

func (f *FulltextIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error { return nil }

func (f *FulltextIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for word, set := range f.words {
		delete(set, mp)
		if len(set) == 0 {
			delete(f.words, word)
		}
	}
	return nil
}

func (f *FulltextIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// QueryKind selects how a fulltext token combines with the rest of a
// query.
type QueryKind int

const (
	// QueryAND requires the token to be present (conjunction).
	QueryAND QueryKind = iota
	// QueryOR makes the token optional but contributing (disjunction).
	QueryOR
	// QueryNOT excludes documents containing the token.
	QueryNOT
)

// QueryTerm is one token and its combination kind in a fulltext query.
type QueryTerm struct {
	Word string
	Kind QueryKind
}

// Query evaluates terms against the index: every QueryAND term must be
// present, every QueryNOT term must be absent, and at least one
// QueryOR term must be present if any QueryOR terms exist at all,
// matching spec.md §4.3.6's conjunction/disjunction/exclusion support.
func (f *FulltextIndex) Query(terms []QueryTerm) []*mvcc.MasterPointer {
	f.mu.RLock()
	defer f.mu.RUnlock()

	candidates := make(map[*mvcc.MasterPointer]struct{})
	first := true
	var orWords []string
	var notWords []string

	for _, term := range terms {
		word := strings.ToLower(term.Word)
		switch term.Kind {
		case QueryAND:
			set := f.words[word]
			if first {
				for mp := range set {
					candidates[mp] = struct{}{}
				}
				first = false
				continue
			}
			for mp := range candidates {
				if _, ok := set[mp]; !ok {
					delete(candidates, mp)
				}
			}
		case QueryOR:
			orWords = append(orWords, word)
		case QueryNOT:
			notWords = append(notWords, word)
		}
	}

	if first {
		// No AND terms: seed candidates from the union of OR terms.
		for _, word := range orWords {
			for mp := range f.words[word] {
				candidates[mp] = struct{}{}
			}
		}
	} else if len(orWords) > 0 {
		for mp := range candidates {
			if !f.matchesAnyWord(mp, orWords) {
				delete(candidates, mp)
			}
		}
	}

	for _, word := range notWords {
		for mp := range f.words[word] {
			delete(candidates, mp)
		}
	}

	out := make([]*mvcc.MasterPointer, 0, len(candidates))
	for mp := range candidates {
		out = append(out, mp)
	}
	return out
}

func (f *FulltextIndex) matchesAnyWord(mp *mvcc.MasterPointer, words []string) bool {
	for _, word := range words {
		if _, ok := f.words[word][mp]; ok {
			return true
		}
	}
	return false
}

func (f *FulltextIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":            f.id,
		"type":          f.typeName,
		"fields":        f.pathStrs,
		"unique":        false,
		"sparse":        true,
		"minWordLength": f.minWordLength,
	}
}

func (f *FulltextIndex) Memory() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	size := 0
	for word, set := range f.words {
		size += len(word) + len(set)*8
	}
	return size
}
