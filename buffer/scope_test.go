package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_CloseReleasesEverything(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	var order []string

	scope := reg.NewScope()
	_, err := scope.Acquire(Float64, 8)
	require.NoError(t, err)
	scope.Defer(func() error {
		order = append(order, "first")
		return nil
	})
	_, err = scope.Wrap([]int32{1, 2, 3})
	require.NoError(t, err)
	scope.Defer(func() error {
		order = append(order, "second")
		return nil
	})

	assert.Equal(t, 2, reg.Live())
	assert.Equal(t, 2, scope.Len())

	require.NoError(t, scope.Close())
	assert.Equal(t, 0, reg.Live())
	assert.Equal(t, []string{"second", "first"}, order)

	// Idempotent.
	require.NoError(t, scope.Close())
	assert.Equal(t, uint64(0), reg.Stats().DoubleReleases)
}

func TestScope_ReleasesOnErrorPath(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	errBoom := errors.New("boom")
	run := func() (err error) {
		scope := reg.NewScope()
		defer func() {
			err = errors.Join(err, scope.Close())
		}()

		if _, err := scope.Acquire(Uint64, 4); err != nil {
			return err
		}
		if _, err := scope.Acquire(Uint8, 4); err != nil {
			return err
		}
		return errBoom
	}

	require.ErrorIs(t, run(), errBoom)
	assert.Equal(t, 0, reg.Live())
}

func TestScope_ReleasesOnPanic(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	assert.Panics(t, func() {
		scope := reg.NewScope()
		defer scope.Close() //nolint:errcheck

		_, err := scope.Acquire(Int32, 4)
		require.NoError(t, err)
		panic("engine fault")
	})
	assert.Equal(t, 0, reg.Live())
}

func TestScope_Detach(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	scope := reg.NewScope()
	keep, err := scope.Acquire(Float64, 4)
	require.NoError(t, err)
	_, err = scope.Acquire(Float64, 4)
	require.NoError(t, err)

	assert.True(t, scope.Detach(keep))
	assert.False(t, scope.Detach(keep))
	require.NoError(t, scope.Close())

	assert.Equal(t, 1, reg.Live())
	assert.False(t, keep.Released())
	require.NoError(t, reg.Release(keep))
}

func TestScope_TrackRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := reg.Acquire(Uint8, 4)
	require.NoError(t, err)

	scope := reg.NewScope()
	require.NoError(t, scope.Track(b))
	require.ErrorIs(t, scope.Track(b), ErrInvalidHandle)

	view, err := reg.Wrap(b)
	require.NoError(t, err)
	require.ErrorIs(t, scope.Track(view), ErrInvalidHandle)

	require.NoError(t, scope.Close())
	assert.True(t, b.Released())
	assert.Equal(t, 0, reg.Live())
}

func TestScope_WrapViewNotOwned(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	owner, err := reg.Acquire(Int32, 4)
	require.NoError(t, err)

	scope := reg.NewScope()
	view, err := scope.Wrap(owner.Int32s())
	require.NoError(t, err)
	assert.True(t, view.IsView())
	assert.Equal(t, 0, scope.Len())
	require.NoError(t, scope.Close())

	assert.False(t, owner.Released())
	require.NoError(t, reg.Release(owner))
}

func TestScope_Closed(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	scope := reg.NewScope()
	require.NoError(t, scope.Close())

	_, err := scope.Acquire(Uint8, 1)
	require.ErrorIs(t, err, ErrScopeClosed)
	_, err = scope.Wrap([]uint8{1})
	require.ErrorIs(t, err, ErrScopeClosed)

	ran := false
	scope.Defer(func() error {
		ran = true
		return nil
	})
	assert.True(t, ran)
	assert.Equal(t, 0, reg.Live())
}

func TestScope_JoinsErrors(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	errA := errors.New("a")
	errB := errors.New("b")

	scope := reg.NewScope()
	scope.Defer(func() error { return errA })
	scope.Defer(func() error { return errB })
	_, err := scope.Acquire(Uint8, 1)
	require.NoError(t, err)

	err = scope.Close()
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	assert.Equal(t, 0, reg.Live())
}
