package mvcc

import (
	"strings"

	"github.com/google/uuid"
)

// Document is the logical unit a collection stores: a serialized body
// plus the key extracted from it. mvcc never parses the body beyond
// extracting _key; attribute-path extraction for indexing is the
// indexes' own job (they receive the MasterPointer's Body and decode
// it themselves), per spec section 4.2.
type Document struct {
	Key      string
	Body     []byte
	Revision uint64
}

// KeyGenerator produces or validates document keys, per spec section
// 4.2's pluggable key-generator note. Generate is called when the
// caller supplies no key; Validate checks a caller-supplied key
// against the generator's naming rules.
type KeyGenerator interface {
	Generate() string
	Validate(key string) error
}

// UUIDKeyGenerator is the default generator: every key is a randomly
// generated UUID. Validate accepts any key that satisfies the general
// document-key character rules (it does not require keys to look like
// UUIDs, since nothing stops a caller from supplying its own).
type UUIDKeyGenerator struct{}

func (UUIDKeyGenerator) Generate() string {
	return uuid.NewString()
}

func (UUIDKeyGenerator) Validate(key string) error {
	if key == "" {
		return wrapError(KindInvalidKeyGenerator, "key must not be empty", nil)
	}
	if len(key) > 254 {
		return wrapError(KindInvalidKeyGenerator, "key exceeds 254 bytes", nil)
	}
	for _, r := range key {
		if !isValidKeyRune(r) {
			return wrapError(KindInvalidKeyGenerator, "key contains illegal character", nil)
		}
	}
	return nil
}

func isValidKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	default:
		return strings.ContainsRune("_-:.@()+,=;$!*'%", r)
	}
}
