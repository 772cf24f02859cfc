package buffer

import "fmt"

// ElementType is the element type of a foreign buffer.
type ElementType uint8

// Element types understood by the engine boundary.
const (
	Uint8 ElementType = iota + 1
	Int32
	Float64
	Uint64
)

// Size returns the size of one element in bytes.
func (t ElementType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Int32:
		return 4
	case Float64, Uint64:
		return 8
	default:
		return 0
	}
}

// String returns the string representation of the ElementType.
func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	case Uint64:
		return "uint64"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// Span describes a typed region on the foreign heap. It carries no ownership.
//
// Gen is the generation of the allocation the span was taken from. A span with
// a non-zero Gen stops resolving once that allocation is released, even if a
// later allocation reuses the address. Spans rebuilt from a bare address (as
// engines do for handle-table entries) leave Gen zero and resolve by address.
type Span struct {
	Addr uintptr
	Len  int
	Type ElementType
	Gen  uint64
}

// Bytes returns the size of the span in bytes.
func (s Span) Bytes() int {
	return s.Len * s.Type.Size()
}

// Memory resolves spans to their current contents. Engines that run in
// process read and write foreign buffers only through a Memory.
type Memory interface {
	Bytes(s Span) ([]byte, error)
}
