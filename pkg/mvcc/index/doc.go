/*
Package index implements the concrete index variants a collection can
carry: PrimaryIndex, EdgeIndex, HashIndex, SkiplistIndex, GeoIndex,
FulltextIndex, and CapConstraint. Every variant implements mvcc.Index,
the uniform contract defined in pkg/mvcc itself (not here) so that
package never has to import this one — breaking the collection/index/
transaction ownership cycle the original's back-pointer-heavy design
had.

Each index holds a non-owning reference to its collection's
shape.Service for attribute extraction and to the mvcc.Transaction
passed into Insert/Remove/Forget for visibility classification; none
of them hold a reference back to the owning collection.
*/
package index
