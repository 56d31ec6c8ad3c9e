/*
Package wal stubs out the external WriteAheadLog collaborator.

The real write-ahead log is an on-disk, append-only structure shared by
every collection in a database; its datafile format is explicitly out of
scope here (see spec.md §1) beyond the marker categories
pkg/collection's OpenIterator must discriminate. This package provides
that boundary: a typed Marker for every kind spec.md §6 lists, a Log
interface the transaction subsystem appends through, and BoltLog, a
bbolt-backed reference implementation that makes the markers durable and
replayable in tick order.

Throttling policy ("when is the WAL signalling back-pressure") is
explicitly externalized by spec.md §9 — only the consumer side (a
sleep-loop with a configurable maximum wait, see pkg/mvcc) is specified.
ThrottlingPolicy here is a simple backlog-byte-size threshold the
embedding application configures; it is not asserted as the canonical
production policy.
*/
package wal
