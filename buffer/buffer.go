package buffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Buffer is a typed, contiguous region on the foreign heap.
//
// A Buffer has exactly one owner. Owned buffers are released through their
// Registry (directly or via a Scope); views returned by Wrap share another
// buffer's memory and own nothing.
type Buffer struct {
	typ      ElementType
	n        int
	addr     uintptr
	gen      uint64 // generation of the heap allocation holding data
	data     []byte
	reg      *Registry
	view     bool
	released atomic.Bool
}

// Type returns the element type.
func (b *Buffer) Type() ElementType { return b.typ }

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.n }

// Addr returns the foreign address of the first element.
func (b *Buffer) Addr() uintptr { return b.addr }

// IsView reports whether the buffer borrows memory it does not own.
func (b *Buffer) IsView() bool { return b.view }

// Released reports whether the buffer (or, for views, its owner) has been released.
func (b *Buffer) Released() bool {
	if b.released.Load() {
		return true
	}
	if b.view {
		return !b.reg.heapContains(b.addr, b.gen, len(b.data))
	}
	return false
}

// Span returns the engine-facing description of the buffer.
func (b *Buffer) Span() Span {
	return Span{Addr: b.addr, Len: b.n, Type: b.typ, Gen: b.gen}
}

// Bytes returns the raw contents, or nil once released.
func (b *Buffer) Bytes() []byte {
	if b.Released() {
		return nil
	}
	return b.data
}

// Uint8s returns the contents as []uint8. It panics on a type mismatch.
func (b *Buffer) Uint8s() []uint8 {
	b.mustBe(Uint8)
	return b.Bytes()
}

// Int32s returns the contents as []int32. It panics on a type mismatch.
func (b *Buffer) Int32s() []int32 {
	b.mustBe(Int32)
	return castSlice[int32](b.Bytes(), b.n)
}

// Float64s returns the contents as []float64. It panics on a type mismatch.
func (b *Buffer) Float64s() []float64 {
	b.mustBe(Float64)
	return castSlice[float64](b.Bytes(), b.n)
}

// Uint64s returns the contents as []uint64. It panics on a type mismatch.
func (b *Buffer) Uint64s() []uint64 {
	b.mustBe(Uint64)
	return castSlice[uint64](b.Bytes(), b.n)
}

func (b *Buffer) mustBe(t ElementType) {
	if b.typ != t {
		panic(fmt.Sprintf("buffer: %s view of a %s buffer", t, b.typ))
	}
}

func (b *Buffer) String() string {
	kind := "owned"
	if b.view {
		kind = "view"
	}
	return fmt.Sprintf("Buffer{%s[%d] at %#x, %s}", b.typ, b.n, b.addr, kind)
}

// castSlice reinterprets foreign bytes as n elements of T. Foreign memory is
// page aligned, so every element type is naturally aligned.
func castSlice[T any](data []byte, n int) []T {
	if data == nil {
		return nil
	}
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n) //nolint:gosec // off-heap typed view
}

func hostBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero))) //nolint:gosec // byte view of a host slice
}

func hostAddr[T any](s []T) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0])) //nolint:gosec // address identity only
}

// AsInt32s reinterprets foreign bytes (as returned by Memory.Bytes) as int32s.
func AsInt32s(data []byte) []int32 { return castSlice[int32](data, len(data)/4) }

// AsFloat64s reinterprets foreign bytes as float64s.
func AsFloat64s(data []byte) []float64 { return castSlice[float64](data, len(data)/8) }

// AsUint64s reinterprets foreign bytes as uint64s.
func AsUint64s(data []byte) []uint64 { return castSlice[uint64](data, len(data)/8) }
