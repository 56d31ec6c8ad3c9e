/*
Package collection implements the reconstruction-at-open replay
(OpenIterator) and the DocumentCollection aggregate that owns a
collection's index vector, master pointer manager, key generator, and
statistics, per spec.md §4.7/§4.8.

It sits one layer above pkg/mvcc: mvcc's CollectionHandle interface is
the narrow, non-owning view a Transaction binds to, and
*DocumentCollection is the concrete implementation resolved by name
through pkg/vocbase's registry before a transaction begins. mvcc never
imports this package, breaking the collection<->index<->transaction
ownership cycle spec.md §9 flags.
*/
package collection
