package mvcc

import "errors"

// Kind classifies an engine error the way spec section 6/7 enumerates
// them: contention errors are retryable by the caller, constraint and
// precondition errors are not, infrastructure errors leave the
// transaction non-committable.
type Kind int

const (
	KindInternal Kind = iota
	KindDocumentNotFound
	KindDocumentTooLarge
	KindUniqueConstraintViolated
	KindWriteConflict
	KindLockTimeout
	KindWriteThrottleTimeout
	KindCollectionNotFound
	KindCollectionTypeInvalid
	KindIllegalName
	KindInvalidKeyGenerator
	KindOutOfMemory
	KindTransactionInternal
	KindTransactionUnregisteredCollection
)

func (k Kind) String() string {
	switch k {
	case KindDocumentNotFound:
		return "DocumentNotFound"
	case KindDocumentTooLarge:
		return "DocumentTooLarge"
	case KindUniqueConstraintViolated:
		return "UniqueConstraintViolated"
	case KindWriteConflict:
		return "WriteConflict"
	case KindLockTimeout:
		return "LockTimeout"
	case KindWriteThrottleTimeout:
		return "WriteThrottleTimeout"
	case KindCollectionNotFound:
		return "CollectionNotFound"
	case KindCollectionTypeInvalid:
		return "CollectionTypeInvalid"
	case KindIllegalName:
		return "IllegalName"
	case KindInvalidKeyGenerator:
		return "InvalidKeyGenerator"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindTransactionInternal:
		return "TransactionInternal"
	case KindTransactionUnregisteredCollection:
		return "TransactionUnregisteredCollection"
	default:
		return "Internal"
	}
}

// Error wraps a Kind with a message and optional cause, matching the
// "result-kind + optional context" propagation policy of spec section 7.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target shares this error's Kind, so callers can
// use errors.Is(err, mvcc.ErrWriteConflict) style checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel errors for errors.Is comparisons against a bare Kind.
var (
	ErrDocumentNotFound               = &Error{Kind: KindDocumentNotFound, Message: "document not found"}
	ErrDocumentTooLarge               = &Error{Kind: KindDocumentTooLarge, Message: "document exceeds size bound"}
	ErrUniqueConstraintViolated       = &Error{Kind: KindUniqueConstraintViolated, Message: "unique constraint violated"}
	ErrWriteConflict                  = &Error{Kind: KindWriteConflict, Message: "write-write conflict"}
	ErrLockTimeout                    = &Error{Kind: KindLockTimeout, Message: "lock acquisition timed out"}
	ErrWriteThrottleTimeout           = &Error{Kind: KindWriteThrottleTimeout, Message: "write throttle wait exceeded"}
	ErrCollectionNotFound             = &Error{Kind: KindCollectionNotFound, Message: "collection not found"}
	ErrCollectionTypeInvalid          = &Error{Kind: KindCollectionTypeInvalid, Message: "collection type invalid for operation"}
	ErrIllegalName                    = &Error{Kind: KindIllegalName, Message: "illegal name"}
	ErrInvalidKeyGenerator            = &Error{Kind: KindInvalidKeyGenerator, Message: "invalid key generator"}
	ErrOutOfMemory                    = &Error{Kind: KindOutOfMemory, Message: "out of memory"}
	ErrTransactionInternal            = &Error{Kind: KindTransactionInternal, Message: "internal transaction error"}
	ErrTransactionUnregisteredCollection = &Error{Kind: KindTransactionUnregisteredCollection, Message: "collection not registered with transaction"}
)
