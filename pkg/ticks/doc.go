/*
Package ticks provides the engine's monotonic 64-bit tick allocator.

Ticks are the single identifier space shared by transaction ids,
document revision ids, and index ids. The allocator is deliberately
tiny: one atomic counter, seeded at startup from the maximum tick
observed while replaying the write-ahead log.
*/
package ticks
