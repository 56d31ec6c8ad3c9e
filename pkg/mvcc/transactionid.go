package mvcc

import "strconv"

// TransactionID is the (own, top) pair identifying a transaction.
// own uniquely identifies this transaction (or subtransaction) across
// the process; top identifies the outermost ancestor. Top-level
// transactions have Own == Top. The zero value means "no transaction".
type TransactionID struct {
	Own uint64
	Top uint64
}

// NoTransactionID is the reserved sentinel for "not set".
var NoTransactionID = TransactionID{}

// IsSet reports whether id is anything other than the sentinel.
func (id TransactionID) IsSet() bool {
	return id.Own != 0
}

// IsTopLevel reports whether id identifies a top-level transaction
// rather than a subtransaction.
func (id TransactionID) IsTopLevel() bool {
	return id.Own == id.Top
}

func (id TransactionID) String() string {
	if id.Own == id.Top {
		return strconv.FormatUint(id.Own, 10)
	}
	return strconv.FormatUint(id.Own, 10) + " (" + strconv.FormatUint(id.Top, 10) + ")"
}
