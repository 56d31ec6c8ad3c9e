package mvcc

import "testing"

func TestUUIDKeyGeneratorGenerateIsValid(t *testing.T) {
	gen := UUIDKeyGenerator{}
	key := gen.Generate()
	if err := gen.Validate(key); err != nil {
		t.Fatalf("generated key failed validation: %v", err)
	}
}

func TestUUIDKeyGeneratorRejectsEmpty(t *testing.T) {
	gen := UUIDKeyGenerator{}
	if err := gen.Validate(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestUUIDKeyGeneratorRejectsIllegalCharacters(t *testing.T) {
	gen := UUIDKeyGenerator{}
	if err := gen.Validate("has space"); err == nil {
		t.Fatal("expected error for key containing a space")
	}
}

func TestUUIDKeyGeneratorAcceptsCustomKey(t *testing.T) {
	gen := UUIDKeyGenerator{}
	if err := gen.Validate("user-123.v2"); err != nil {
		t.Fatalf("expected custom key to validate: %v", err)
	}
}
