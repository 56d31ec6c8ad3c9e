package wal

import "errors"

// ErrClosed is returned by a Log after Close.
var ErrClosed = errors.New("wal: log is closed")

// Log is the external write-ahead-log collaborator the transaction
// subsystem appends through and pkg/collection's OpenIterator replays
// from. Exposes the throttling signal spec.md §4.4's begin() consults.
type Log interface {
	// Append durably records marker and assigns it the next tick.
	Append(marker Marker) (tick uint64, err error)

	// Markers returns an Iterator over every marker with Tick >= from,
	// in ascending tick order.
	Markers(from uint64) (Iterator, error)

	// Throttled reports whether the WAL is currently signalling
	// back-pressure to writers.
	Throttled() bool

	// MaxTick returns the highest tick ever appended, or 0 if empty.
	// pkg/vocbase seeds pkg/ticks.Service from the replay result
	// instead, not from MaxTick.
	MaxTick() uint64

	Close() error
}

// Iterator walks markers in ascending tick order.
type Iterator interface {
	// Next advances to the next marker and returns it. ok is false once
	// exhausted.
	Next() (Marker, bool)
	Close() error
}

// ThrottlingPolicy decides when the WAL should signal back-pressure.
// spec.md §9 explicitly externalizes this policy; this is a simple
// backlog-byte-size threshold, not a canonical production policy.
type ThrottlingPolicy struct {
	// MaxPendingBytes is the backlog size, in bytes of marker body
	// payload, above which Throttled reports true. Zero disables
	// throttling.
	MaxPendingBytes int64
}

func (p ThrottlingPolicy) shouldThrottle(pendingBytes int64) bool {
	return p.MaxPendingBytes > 0 && pendingBytes >= p.MaxPendingBytes
}
