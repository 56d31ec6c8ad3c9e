/*
Package shape stubs out the external ShapeService collaborator.

The real ArangoDB "shape" subsystem converts serialized document blobs
into named-attribute accessors with a process-wide, stable type
descriptor (the "shape") per distinct attribute layout. Shape/attribute
serialization internals are explicitly out of scope for this engine
(see spec.md §1) — this package only provides the interface boundary
the index layer needs: extracting a value at an attribute path, and
comparing two extracted values with the shape-aware total order spec.md
§4.3.4 requires (null < boolean < number < string < sequence < object).

InMemoryService is a reference implementation backed by encoding/json;
it is sufficient for the engine's own tests and is not a production
shaper.
*/
package shape
