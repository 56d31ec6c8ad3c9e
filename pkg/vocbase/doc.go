/*
Package vocbase is the process-wide collection name/id registry a
transaction's CollectionDeclaration resolves against. mvcc itself holds
no such registry (it only knows the narrow CollectionHandle interface a
transaction binds to); Vocbase owns the *collection.DocumentCollection
values, drives each one's replay-at-open sequence against the shared
WAL, and hands out non-owning lookups by name, breaking the
collection<->index<->transaction ownership cycle spec.md §9 flags.
*/
package vocbase
