package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/labelkit/internal/conv"
	"github.com/hupe1980/labelkit/internal/heap"
)

// MemoryAcquirer accounts for foreign memory against an external budget,
// typically a *resource.Controller.
type MemoryAcquirer interface {
	TryAcquireMemory(amount int64) bool
	ReleaseMemory(amount int64)
}

// Stats tracks registry activity.
type Stats struct {
	Live           int    // Current: owned buffers not yet released
	Acquired       uint64 // Historical: owned buffers allocated
	Released       uint64 // Historical: owned buffers released
	WrapCopies     uint64 // Historical: Wrap calls that allocated and copied
	WrapViews      uint64 // Historical: Wrap calls answered with a zero-copy view
	DoubleReleases uint64 // Historical: rejected second releases
}

type atomicStats struct {
	Acquired       atomic.Uint64
	Released       atomic.Uint64
	WrapCopies     atomic.Uint64
	WrapViews      atomic.Uint64
	DoubleReleases atomic.Uint64
}

// Registry allocates, tracks and frees typed buffers on the foreign heap.
// It implements Memory for in-process engines.
type Registry struct {
	heap  *heap.Heap
	mu    sync.Mutex
	live  map[uintptr]*Buffer
	debug bool
	stats atomicStats
}

// Option is a configuration option for Registry.
type Option func(*registryOptions)

type registryOptions struct {
	debug    bool
	acquirer MemoryAcquirer
}

// WithDebug makes double releases panic in addition to returning ErrInvalidHandle.
func WithDebug(debug bool) Option {
	return func(o *registryOptions) {
		o.debug = debug
	}
}

// WithMemoryAcquirer charges every allocation against acquirer.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(o *registryOptions) {
		o.acquirer = acquirer
	}
}

// NewRegistry creates a Registry with its own foreign heap.
func NewRegistry(optFns ...Option) *Registry {
	var o registryOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	var heapOpts []heap.Option
	if o.acquirer != nil {
		heapOpts = append(heapOpts, heap.WithMemoryAcquirer(o.acquirer))
	}

	return &Registry{
		heap:  heap.New(heapOpts...),
		live:  make(map[uintptr]*Buffer),
		debug: o.debug,
	}
}

// Acquire allocates n zero-initialized elements of type t.
func (r *Registry) Acquire(t ElementType, n int) (*Buffer, error) {
	if t.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	size, err := conv.CheckedMul(n, t.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailure, err)
	}

	ref, data, err := r.heap.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %d x %s: %w", ErrAllocationFailure, n, t, err)
	}

	b := &Buffer{typ: t, n: n, addr: ref.Addr, gen: ref.Gen, data: data, reg: r}

	r.mu.Lock()
	r.live[ref.Addr] = b
	r.mu.Unlock()

	r.stats.Acquired.Add(1)
	return b, nil
}

// Release frees an owned buffer. Each buffer may be released once; a second
// release returns ErrInvalidHandle (and panics in debug mode).
func (r *Registry) Release(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidHandle)
	}
	if b.reg != r {
		return fmt.Errorf("%w: buffer belongs to another registry", ErrInvalidHandle)
	}
	if b.view {
		return fmt.Errorf("%w: %s does not own its memory", ErrInvalidHandle, b)
	}
	if b.released.Swap(true) {
		r.stats.DoubleReleases.Add(1)
		if r.debug {
			panic(fmt.Sprintf("buffer: double release of %s", b))
		}
		return fmt.Errorf("%w: %s already released", ErrInvalidHandle, b)
	}

	r.mu.Lock()
	delete(r.live, b.addr)
	r.mu.Unlock()

	r.stats.Released.Add(1)
	if err := r.heap.Free(b.addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	return nil
}

// Wrap makes host data visible on the foreign heap.
//
// A *Buffer, or a slice whose backing array already lives on this registry's
// heap, yields a zero-copy view (IsView reports true and the view must not be
// released). Any other supported slice is copied into a fresh owned buffer.
// Supported host types are []uint8, []bool, []int32, []int, []float64 and []uint64.
func (r *Registry) Wrap(host any) (*Buffer, error) {
	switch v := host.(type) {
	case *Buffer:
		return r.viewOf(v)
	case []uint8:
		return wrapSlice(r, Uint8, v)
	case []int32:
		return wrapSlice(r, Int32, v)
	case []float64:
		return wrapSlice(r, Float64, v)
	case []uint64:
		return wrapSlice(r, Uint64, v)
	case []bool:
		b, err := r.Acquire(Uint8, len(v))
		if err != nil {
			return nil, err
		}
		dst := b.Uint8s()
		for i, x := range v {
			if x {
				dst[i] = 1
			}
		}
		r.stats.WrapCopies.Add(1)
		return b, nil
	case []int:
		b, err := r.Acquire(Int32, len(v))
		if err != nil {
			return nil, err
		}
		dst := b.Int32s()
		for i, x := range v {
			y, err := conv.IntToInt32(x)
			if err != nil {
				return nil, errors.Join(err, r.Release(b))
			}
			dst[i] = y
		}
		r.stats.WrapCopies.Add(1)
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, host)
	}
}

func wrapSlice[T any](r *Registry, t ElementType, host []T) (*Buffer, error) {
	src := hostBytes(host)
	if addr := hostAddr(host); addr != 0 {
		if owner, _, ok := r.heap.Find(addr); ok {
			ref := heap.Ref{Addr: addr, Gen: owner.Gen}
			if data, err := r.heap.RefBytes(ref, len(src)); err == nil {
				r.stats.WrapViews.Add(1)
				return &Buffer{typ: t, n: len(host), addr: addr, gen: ref.Gen, data: data, reg: r, view: true}, nil
			}
		}
	}

	b, err := r.Acquire(t, len(host))
	if err != nil {
		return nil, err
	}
	copy(b.data, src)
	r.stats.WrapCopies.Add(1)
	return b, nil
}

func (r *Registry) viewOf(b *Buffer) (*Buffer, error) {
	if b == nil || b.reg != r || b.Released() {
		return nil, fmt.Errorf("%w: cannot wrap %v", ErrInvalidHandle, b)
	}
	r.stats.WrapViews.Add(1)
	return &Buffer{typ: b.typ, n: b.n, addr: b.addr, gen: b.gen, data: b.data, reg: r, view: true}, nil
}

// Bytes implements Memory. The span may start anywhere inside a live buffer
// but must not extend past it, and a span carrying a generation must come from
// that same buffer rather than an earlier one at the same address.
func (r *Registry) Bytes(s Span) ([]byte, error) {
	if s.Type.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, s.Type)
	}
	size, err := conv.CheckedMul(s.Len, s.Type.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	data, err := r.heap.RefBytes(heap.Ref{Addr: s.Addr, Gen: s.Gen}, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	return data, nil
}

// Lookup returns the owned buffer starting at addr.
func (r *Registry) Lookup(addr uintptr) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.live[addr]
	return b, ok
}

func (r *Registry) heapContains(addr uintptr, gen uint64, size int) bool {
	_, err := r.heap.RefBytes(heap.Ref{Addr: addr, Gen: gen}, size)
	return err == nil
}

// Live returns the number of owned buffers that have not been released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Stats returns the current registry statistics.
func (r *Registry) Stats() Stats {
	return Stats{
		Live:           r.Live(),
		Acquired:       r.stats.Acquired.Load(),
		Released:       r.stats.Released.Load(),
		WrapCopies:     r.stats.WrapCopies.Load(),
		WrapViews:      r.stats.WrapViews.Load(),
		DoubleReleases: r.stats.DoubleReleases.Load(),
	}
}

// HeapStats returns the statistics of the underlying foreign heap.
func (r *Registry) HeapStats() heap.Stats {
	return r.heap.Stats()
}

// Close releases every buffer still live and returns how many there were.
func (r *Registry) Close() (int, error) {
	r.mu.Lock()
	live := r.live
	r.live = make(map[uintptr]*Buffer)
	r.mu.Unlock()

	for _, b := range live {
		b.released.Store(true)
	}
	_, err := r.heap.Close()
	return len(live), err
}
