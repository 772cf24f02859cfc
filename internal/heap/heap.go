package heap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/labelkit/internal/mmap"
)

var (
	// ErrAllocationFailed is returned when the heap cannot satisfy a request.
	ErrAllocationFailed = errors.New("heap: allocation failed")
	// ErrUnknownAddress is returned for addresses that are not live allocations.
	ErrUnknownAddress = errors.New("heap: unknown address")
	// ErrOutOfBounds is returned when a view extends past its allocation.
	ErrOutOfBounds = errors.New("heap: out of bounds")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("heap: closed")
	// ErrStale is returned for a reference whose allocation was freed, even if
	// a newer allocation now occupies the same address.
	ErrStale = errors.New("heap: stale reference")
)

// Ref identifies one allocation. Addresses are reused by the OS once an
// allocation is freed; the generation is not.
type Ref struct {
	Addr uintptr
	Gen  uint64
}

// MemoryAcquirer accounts for heap memory against an external budget.
type MemoryAcquirer interface {
	TryAcquireMemory(amount int64) bool
	ReleaseMemory(amount int64)
}

// Stats tracks heap usage.
type Stats struct {
	LiveAllocs   int64  // Current: allocations not yet freed
	BytesUsed    int64  // Current: requested bytes of live allocations
	BytesMapped  int64  // Current: mapped bytes of live allocations (at least one byte each)
	TotalAllocs  uint64 // Historical: allocation count
	TotalFrees   uint64 // Historical: free count
	FailedAllocs uint64 // Historical: rejected allocations
}

type atomicStats struct {
	LiveAllocs   atomic.Int64
	BytesUsed    atomic.Int64
	BytesMapped  atomic.Int64
	TotalAllocs  atomic.Uint64
	TotalFrees   atomic.Uint64
	FailedAllocs atomic.Uint64
}

type region struct {
	mapping *mmap.Mapping
	size    int    // requested size; the mapping may be larger
	gen     uint64 // never 0
}

// Heap is an off-heap allocator whose allocations have stable addresses.
//
// Every allocation is backed by its own anonymous mapping, so memory is
// zero-initialized, never moved, and returned to the OS on Free. Allocations
// are identified by the address of their first byte plus a generation that
// detects references outliving their allocation.
type Heap struct {
	mu         sync.RWMutex
	regions    map[uintptr]*region
	generation atomic.Uint64
	acquirer   MemoryAcquirer
	closed     bool
	stats      atomicStats
}

// Option is a configuration option for Heap.
type Option func(*Heap)

// WithMemoryAcquirer sets the memory acquirer for the heap.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(h *Heap) {
		h.acquirer = acquirer
	}
}

// New creates an empty Heap.
func New(opts ...Option) *Heap {
	h := &Heap{
		regions: make(map[uintptr]*region),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Alloc reserves size zeroed bytes and returns their reference and contents.
// A zero size still yields a distinct, freeable allocation.
func (h *Heap) Alloc(size int) (Ref, []byte, error) {
	if size < 0 {
		return Ref{}, nil, fmt.Errorf("%w: negative size %d", ErrAllocationFailed, size)
	}

	mapSize := size
	if mapSize == 0 {
		mapSize = 1
	}

	if h.acquirer != nil && !h.acquirer.TryAcquireMemory(int64(mapSize)) {
		h.stats.FailedAllocs.Add(1)
		return Ref{}, nil, fmt.Errorf("%w: memory limit reached for %d bytes", ErrAllocationFailed, size)
	}

	m, err := mmap.MapAnon(mapSize)
	if err != nil {
		if h.acquirer != nil {
			h.acquirer.ReleaseMemory(int64(mapSize))
		}
		h.stats.FailedAllocs.Add(1)
		return Ref{}, nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = m.Close()
		if h.acquirer != nil {
			h.acquirer.ReleaseMemory(int64(mapSize))
		}
		return Ref{}, nil, ErrClosed
	}
	ref := Ref{Addr: m.Addr(), Gen: h.generation.Add(1)}
	h.regions[ref.Addr] = &region{mapping: m, size: size, gen: ref.Gen}
	h.mu.Unlock()

	h.stats.LiveAllocs.Add(1)
	h.stats.BytesUsed.Add(int64(size))
	h.stats.BytesMapped.Add(int64(m.Size()))
	h.stats.TotalAllocs.Add(1)

	return ref, m.Bytes()[:size:size], nil
}

// Free releases the allocation starting at addr.
func (h *Heap) Free(addr uintptr) error {
	h.mu.Lock()
	r, ok := h.regions[addr]
	if ok {
		delete(h.regions, addr)
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownAddress, addr)
	}
	return h.release(r)
}

func (h *Heap) release(r *region) error {
	mapped := r.mapping.Size()
	err := r.mapping.Close()

	if h.acquirer != nil {
		h.acquirer.ReleaseMemory(int64(mapped))
	}
	h.stats.LiveAllocs.Add(-1)
	h.stats.BytesUsed.Add(-int64(r.size))
	h.stats.BytesMapped.Add(-int64(mapped))
	h.stats.TotalFrees.Add(1)
	return err
}

// Bytes returns size bytes starting at addr, which may point anywhere inside
// whatever allocation is live there.
func (h *Heap) Bytes(addr uintptr, size int) ([]byte, error) {
	return h.RefBytes(Ref{Addr: addr}, size)
}

// RefBytes is Bytes for a reference. ref.Addr may point anywhere inside the
// allocation; a non-zero ref.Gen must match the allocation's generation.
func (h *Heap) RefBytes(ref Ref, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfBounds, size)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	base, r, ok := h.findLocked(ref.Addr)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownAddress, ref.Addr)
	}
	if ref.Gen != 0 && ref.Gen != r.gen {
		return nil, fmt.Errorf("%w: %#x generation %d, live generation %d", ErrStale, ref.Addr, ref.Gen, r.gen)
	}
	off := int(ref.Addr - base)
	if off+size > r.size {
		return nil, fmt.Errorf("%w: %d bytes at offset %d of a %d byte allocation", ErrOutOfBounds, size, off, r.size)
	}
	return r.mapping.Bytes()[off : off+size : off+size], nil
}

// Find reports the reference and size of the live allocation containing addr.
func (h *Heap) Find(addr uintptr) (Ref, int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	base, r, ok := h.findLocked(addr)
	if !ok {
		return Ref{}, 0, false
	}
	return Ref{Addr: base, Gen: r.gen}, r.size, true
}

func (h *Heap) findLocked(addr uintptr) (uintptr, *region, bool) {
	if r, ok := h.regions[addr]; ok {
		return addr, r, true
	}
	for base, r := range h.regions {
		if addr >= base && addr < base+uintptr(r.size) {
			return base, r, true
		}
	}
	return 0, nil, false
}

// Live returns the number of allocations that have not been freed.
func (h *Heap) Live() int {
	return int(h.stats.LiveAllocs.Load())
}

// Stats returns the current heap statistics.
func (h *Heap) Stats() Stats {
	return Stats{
		LiveAllocs:   h.stats.LiveAllocs.Load(),
		BytesUsed:    h.stats.BytesUsed.Load(),
		BytesMapped:  h.stats.BytesMapped.Load(),
		TotalAllocs:  h.stats.TotalAllocs.Load(),
		TotalFrees:   h.stats.TotalFrees.Load(),
		FailedAllocs: h.stats.FailedAllocs.Load(),
	}
}

// Close frees every live allocation and rejects further allocations.
// It returns the number of allocations that were still live.
func (h *Heap) Close() (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, nil
	}
	h.closed = true
	regions := h.regions
	h.regions = make(map[uintptr]*region)
	h.mu.Unlock()

	var firstErr error
	for _, r := range regions {
		if err := h.release(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(regions), firstErr
}

func (h *Heap) String() string {
	s := h.Stats()
	return fmt.Sprintf(
		"Heap{live: %d, used: %.2f KB, mapped: %.2f KB, allocs: %d, frees: %d}",
		s.LiveAllocs,
		float64(s.BytesUsed)/1024,
		float64(s.BytesMapped)/1024,
		s.TotalAllocs,
		s.TotalFrees,
	)
}
