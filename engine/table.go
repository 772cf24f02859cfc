package engine

import (
	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/internal/conv"
)

// HandleTable is a fixed-size array of 64-bit entries, each either an engine
// handle or the address of a foreign buffer. Integration calls receive such
// tables in a Uint64 buffer.
type HandleTable struct {
	entries []uint64
}

// NewHandleTable returns a table with n zero entries.
func NewHandleTable(n int) *HandleTable {
	return &HandleTable{entries: make([]uint64, n)}
}

// SetHandle stores h at position i.
func (t *HandleTable) SetHandle(i int, h Handle) {
	t.entries[i] = uint64(h)
}

// SetSpan stores the address of s at position i.
func (t *HandleTable) SetSpan(i int, s buffer.Span) {
	t.entries[i] = conv.UintptrToUint64(s.Addr)
}

// Len returns the number of entries.
func (t *HandleTable) Len() int { return len(t.entries) }

// Entries returns the raw entries.
func (t *HandleTable) Entries() []uint64 { return t.entries }

// ReadHandles decodes a Uint64 table span into handles.
func ReadHandles(mem buffer.Memory, table buffer.Span) ([]Handle, error) {
	raw, err := ReadUint64s(mem, table)
	if err != nil {
		return nil, err
	}
	out := make([]Handle, len(raw))
	for i, v := range raw {
		out[i] = Handle(v)
	}
	return out, nil
}

// ReadUint64s returns a copy of a Uint64 span.
func ReadUint64s(mem buffer.Memory, s buffer.Span) ([]uint64, error) {
	if s.Type != buffer.Uint64 {
		return nil, ErrInvalidArgument
	}
	data, err := mem.Bytes(s)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, s.Len)
	copy(out, buffer.AsUint64s(data))
	return out, nil
}
