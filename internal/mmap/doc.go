// Package mmap provides memory mappings for zero-copy file access and for
// off-heap allocations.
//
// # Usage
//
//	m, err := mmap.Open("ranks.csv.gz")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // zero-copy access to file contents
//
// # Anonymous Mappings
//
// MapAnon creates zero-filled read-write anonymous mappings. The foreign heap
// (internal/heap) places every engine-visible buffer in one, so buffer
// addresses stay stable and are never moved by the Go garbage collector.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2)
//   - Windows: CreateFileMapping/MapViewOfFile and VirtualAlloc
//
// # Thread Safety
//
// Mapping is safe for concurrent read access. Close is idempotent; callers must
// ensure no goroutine uses Bytes() after Close() returns.
package mmap
