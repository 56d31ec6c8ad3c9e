package mvcc

import "testing"

func TestTransactionIDIsSet(t *testing.T) {
	if NoTransactionID.IsSet() {
		t.Fatal("zero value must not be set")
	}
	if !(TransactionID{Own: 1, Top: 1}).IsSet() {
		t.Fatal("non-zero own must be set")
	}
}

func TestTransactionIDIsTopLevel(t *testing.T) {
	top := TransactionID{Own: 5, Top: 5}
	if !top.IsTopLevel() {
		t.Fatal("own == top must be top-level")
	}

	sub := TransactionID{Own: 6, Top: 5}
	if sub.IsTopLevel() {
		t.Fatal("own != top must not be top-level")
	}
}

func TestTransactionIDString(t *testing.T) {
	if got := (TransactionID{Own: 5, Top: 5}).String(); got != "5" {
		t.Fatalf("got %q", got)
	}
	if got := (TransactionID{Own: 6, Top: 5}).String(); got != "6 (5)" {
		t.Fatalf("got %q", got)
	}
}
