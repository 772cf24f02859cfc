// Package heap provides the foreign heap: off-heap allocations with stable
// addresses that can be handed across the engine boundary.
//
// # Memory Management
//
// Each allocation is an anonymous mapping (see internal/mmap). Memory is zero
// on allocation and unmapped on Free, so a freed address is never readable
// through the heap again. An optional MemoryAcquirer enforces a global budget;
// exceeding it fails the allocation with ErrAllocationFailed.
//
// # Concurrency Model
//
// Alloc, Free and Bytes are safe for concurrent use. Ownership discipline
// (who frees what, and when) is the caller's job; see package buffer.
package heap
