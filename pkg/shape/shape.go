package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the shape-aware type tag used by the total order spec.md
// §4.3.4 requires: null < boolean < number < string < sequence < object.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// ShapeID is a process-wide stable identifier for one attribute layout,
// issued by Register. NullShapeID is reserved for the shape of the JSON
// null value, which sparse indexes treat as "absent" per spec.md's
// glossary entry for sparse index.
type ShapeID uint32

// NullShapeID identifies the shape of JSON null.
const NullShapeID ShapeID = 1

// AttributePath is an opaque handle to a dotted attribute path, e.g.
// "address.city". Callers obtain one via NewAttributePath and never
// inspect its internals; the index layer only ever compares or hashes
// through the Service.
type AttributePath struct {
	parts []string
}

// NewAttributePath builds an opaque attribute-path handle from path
// segments, e.g. NewAttributePath("address", "city").
func NewAttributePath(parts ...string) AttributePath {
	cp := make([]string, len(parts))
	copy(cp, parts)
	return AttributePath{parts: cp}
}

// String renders the path in dotted form, for logging and index JSON
// descriptors only.
func (p AttributePath) String() string {
	out := ""
	for i, part := range p.parts {
		if i > 0 {
			out += "."
		}
		out += part
	}
	return out
}

// Value is an extracted attribute value: its shape-typed kind, the
// process-wide shape id, and the raw payload bytes backing shape-aware
// comparison and hashing.
type Value struct {
	Kind    Kind
	ShapeID ShapeID
	Raw     []byte
}

// IsNull reports whether v holds the JSON null shape.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Service converts between serialized document blobs and named-attribute
// accessors. It is the interface boundary spec.md §1 calls out as an
// external collaborator: shape/attribute serialization internals beyond
// this contract are out of scope.
type Service interface {
	// Extract returns the value at path within blob. ok is false if the
	// path is absent from blob (as opposed to present and null).
	Extract(blob []byte, path AttributePath) (Value, bool)

	// Register assigns (or returns the existing) ShapeID for blob's
	// overall attribute layout.
	Register(blob []byte) (ShapeID, error)
}

// InMemoryService is a reference Service backed by encoding/json. It is
// not a production shaper; it exists so the engine's own tests can run
// without a real shape/attribute subsystem, per spec.md §1's framing of
// the shape service as an opaque external collaborator.
type InMemoryService struct {
	shapes map[string]ShapeID
	nextID ShapeID
}

// NewInMemoryService creates an InMemoryService with NullShapeID reserved.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		shapes: make(map[string]ShapeID),
		nextID: NullShapeID + 1,
	}
}

func (s *InMemoryService) Extract(blob []byte, path AttributePath) (Value, bool) {
	var doc map[string]interface{}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return Value{}, false
	}

	var cur interface{} = doc
	for i, part := range path.parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return Value{}, false
		}
		v, present := m[part]
		if !present {
			return Value{}, false
		}
		if i == len(path.parts)-1 {
			return valueOf(v), true
		}
		cur = v
	}
	return Value{}, false
}

func (s *InMemoryService) Register(blob []byte) (ShapeID, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return 0, fmt.Errorf("shape: register: %w", err)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	layout := fmt.Sprintf("%v", keys)

	if id, ok := s.shapes[layout]; ok {
		return id, nil
	}
	id := s.nextID
	s.nextID++
	s.shapes[layout] = id
	return id, nil
}

func valueOf(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull, ShapeID: NullShapeID}
	case bool:
		raw := []byte("false")
		if x {
			raw = []byte("true")
		}
		return Value{Kind: KindBool, Raw: raw}
	case float64:
		raw, _ := json.Marshal(x)
		return Value{Kind: KindNumber, Raw: raw}
	case string:
		return Value{Kind: KindString, Raw: []byte(x)}
	case []interface{}:
		raw, _ := json.Marshal(x)
		return Value{Kind: KindArray, Raw: raw}
	default:
		raw, _ := json.Marshal(x)
		return Value{Kind: KindObject, Raw: raw}
	}
}

// Compare implements the shape-aware total order spec.md §4.3.4
// requires: null < boolean < number < string < sequence < object, with
// a type-specific total order within each kind.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}

	switch a.Kind {
	case KindNull:
		return 0
	case KindNumber:
		var af, bf float64
		_ = json.Unmarshal(a.Raw, &af)
		_ = json.Unmarshal(b.Raw, &bf)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(a.Raw, b.Raw)
	}
}

// Equal reports whether a and b compare equal by (shape kind, byte
// length, byte payload) as spec.md §4.3.3 specifies for hash-index
// equality checks.
func Equal(a, b Value) bool {
	return a.Kind == b.Kind && len(a.Raw) == len(b.Raw) && bytes.Equal(a.Raw, b.Raw)
}
