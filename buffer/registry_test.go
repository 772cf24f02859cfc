package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type budget struct {
	limit int64
	used  int64
}

func (b *budget) TryAcquireMemory(n int64) bool {
	if b.used+n > b.limit {
		return false
	}
	b.used += n
	return true
}

func (b *budget) ReleaseMemory(n int64) { b.used -= n }

func TestRegistry_AcquireRelease(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	for _, typ := range []ElementType{Uint8, Int32, Float64, Uint64} {
		t.Run(typ.String(), func(t *testing.T) {
			b, err := reg.Acquire(typ, 16)
			require.NoError(t, err)
			assert.Equal(t, typ, b.Type())
			assert.Equal(t, 16, b.Len())
			assert.Len(t, b.Bytes(), 16*typ.Size())
			assert.False(t, b.IsView())
			assert.Equal(t, 1, reg.Live())

			for _, x := range b.Bytes() {
				require.Zero(t, x)
			}

			require.NoError(t, reg.Release(b))
			assert.True(t, b.Released())
			assert.Nil(t, b.Bytes())
			assert.Equal(t, 0, reg.Live())
		})
	}
}

func TestRegistry_AcquireZeroLength(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Float64, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Float64s())
	require.NoError(t, reg.Release(b))
}

func TestRegistry_AcquireUnsupported(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	_, err := reg.Acquire(ElementType(99), 4)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRegistry_DoubleRelease(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Int32, 4)
	require.NoError(t, err)
	require.NoError(t, reg.Release(b))

	err = reg.Release(b)
	require.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, uint64(1), reg.Stats().DoubleReleases)
}

func TestRegistry_DoubleReleaseDebugPanics(t *testing.T) {
	reg := NewRegistry(WithDebug(true))
	defer reg.Close()

	b, err := reg.Acquire(Int32, 4)
	require.NoError(t, err)
	require.NoError(t, reg.Release(b))

	assert.Panics(t, func() { _ = reg.Release(b) })
}

func TestRegistry_ReleaseForeign(t *testing.T) {
	a := NewRegistry()
	defer a.Close()
	b := NewRegistry()
	defer b.Close()

	buf, err := a.Acquire(Uint8, 8)
	require.NoError(t, err)

	require.ErrorIs(t, b.Release(buf), ErrInvalidHandle)
	require.ErrorIs(t, b.Release(nil), ErrInvalidHandle)
	require.NoError(t, a.Release(buf))
}

func TestRegistry_MemoryBudget(t *testing.T) {
	bg := &budget{limit: 1024}
	reg := NewRegistry(WithMemoryAcquirer(bg))
	defer reg.Close()

	b, err := reg.Acquire(Float64, 100)
	require.NoError(t, err)

	_, err = reg.Acquire(Float64, 100)
	require.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, 1, reg.Live())

	require.NoError(t, reg.Release(b))
	assert.Zero(t, bg.used)
}

func TestRegistry_WrapCopiesHostData(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	host := []float64{1.5, 2.5, 3.5}
	b, err := reg.Wrap(host)
	require.NoError(t, err)
	assert.False(t, b.IsView())
	assert.Equal(t, host, b.Float64s())

	// The copy is independent of the host slice.
	host[0] = 9
	assert.InDelta(t, 1.5, b.Float64s()[0], 1e-12)

	require.NoError(t, reg.Release(b))
	assert.Equal(t, uint64(1), reg.Stats().WrapCopies)
}

func TestRegistry_WrapHeapResidentIsView(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	owner, err := reg.Acquire(Uint64, 8)
	require.NoError(t, err)
	copy(owner.Uint64s(), []uint64{1, 2, 3, 4, 5, 6, 7, 8})

	view, err := reg.Wrap(owner.Uint64s()[2:5])
	require.NoError(t, err)
	assert.True(t, view.IsView())
	assert.Equal(t, []uint64{3, 4, 5}, view.Uint64s())
	assert.Equal(t, 1, reg.Live())

	whole, err := reg.Wrap(owner)
	require.NoError(t, err)
	assert.True(t, whole.IsView())
	assert.Equal(t, owner.Addr(), whole.Addr())

	require.ErrorIs(t, reg.Release(view), ErrInvalidHandle)

	require.NoError(t, reg.Release(owner))
	assert.True(t, view.Released())
	assert.True(t, whole.Released())
	assert.Equal(t, 0, reg.Live())
}

func TestRegistry_WrapConversions(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	flags, err := reg.Wrap([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1}, flags.Uint8s())

	ints, err := reg.Wrap([]int{3, -1, 7})
	require.NoError(t, err)
	assert.Equal(t, []int32{3, -1, 7}, ints.Int32s())

	_, err = reg.Wrap([]int{1 << 40})
	require.Error(t, err)
	assert.Equal(t, 2, reg.Live())

	_, err = reg.Wrap("nope")
	require.ErrorIs(t, err, ErrUnsupportedType)

	require.NoError(t, reg.Release(flags))
	require.NoError(t, reg.Release(ints))
}

func TestRegistry_WrapReleasedBuffer(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Int32, 2)
	require.NoError(t, err)
	require.NoError(t, reg.Release(b))

	_, err = reg.Wrap(b)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistry_MemoryBytes(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Int32, 4)
	require.NoError(t, err)
	copy(b.Int32s(), []int32{1, 2, 3, 4})

	var mem Memory = reg
	data, err := mem.Bytes(b.Span())
	require.NoError(t, err)
	assert.Len(t, data, 16)

	interior := Span{Addr: b.Addr() + 4, Len: 2, Type: Int32}
	data, err = mem.Bytes(interior)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 3}, castSlice[int32](data, 2))

	_, err = mem.Bytes(Span{Addr: b.Addr(), Len: 5, Type: Int32})
	require.ErrorIs(t, err, ErrInvalidHandle)

	require.NoError(t, reg.Release(b))
	_, err = mem.Bytes(b.Span())
	require.ErrorIs(t, err, ErrInvalidHandle)
}

// acquireAt acquires Int32 buffers of length n until one lands on addr. The
// misses are released before returning.
func acquireAt(t *testing.T, reg *Registry, addr uintptr, n int) *Buffer {
	t.Helper()
	var misses []*Buffer
	defer func() {
		for _, b := range misses {
			require.NoError(t, reg.Release(b))
		}
	}()
	for i := 0; i < 64; i++ {
		b, err := reg.Acquire(Int32, n)
		require.NoError(t, err)
		if b.Addr() == addr {
			return b
		}
		misses = append(misses, b)
	}
	t.Skip("heap did not reuse the released address")
	return nil
}

func TestRegistry_StaleSpanAfterAddressReuse(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	old, err := reg.Acquire(Int32, 4)
	require.NoError(t, err)
	stale := old.Span()
	view, err := reg.Wrap(old)
	require.NoError(t, err)
	sliceView, err := reg.Wrap(old.Int32s()[1:])
	require.NoError(t, err)
	require.True(t, sliceView.IsView())

	require.NoError(t, reg.Release(old))

	fresh := acquireAt(t, reg, stale.Addr, 4)
	defer func() { require.NoError(t, reg.Release(fresh)) }()
	assert.NotEqual(t, stale.Gen, fresh.Span().Gen)

	_, err = reg.Bytes(stale)
	require.ErrorIs(t, err, ErrInvalidHandle)
	_, err = reg.Bytes(Span{Addr: stale.Addr + 4, Len: 1, Type: Int32, Gen: stale.Gen})
	require.ErrorIs(t, err, ErrInvalidHandle)

	assert.True(t, view.Released())
	assert.Nil(t, view.Bytes())
	assert.True(t, sliceView.Released())
	_, err = reg.Wrap(view)
	require.ErrorIs(t, err, ErrInvalidHandle)

	data, err := reg.Bytes(fresh.Span())
	require.NoError(t, err)
	assert.Len(t, data, 16)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Uint8, 3)
	require.NoError(t, err)

	got, ok := reg.Lookup(b.Addr())
	require.True(t, ok)
	assert.Same(t, b, got)

	require.NoError(t, reg.Release(b))
	_, ok = reg.Lookup(b.Addr())
	assert.False(t, ok)
}

func TestRegistry_CloseReportsLeaks(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Acquire(Uint8, 3)
	require.NoError(t, err)
	_, err = reg.Acquire(Float64, 3)
	require.NoError(t, err)

	leaked, err := reg.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, leaked)
	assert.Equal(t, 0, reg.Live())
}

func TestBuffer_TypeMismatchPanics(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Int32, 2)
	require.NoError(t, err)
	defer reg.Release(b) //nolint:errcheck

	assert.Panics(t, func() { b.Float64s() })
	assert.Contains(t, b.String(), "int32[2]")
}
