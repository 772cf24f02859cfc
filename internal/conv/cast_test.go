package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToInt32(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToInt32(0)
		assert.NoError(t, err)
		assert.Equal(t, int32(0), got)
	})

	t.Run("valid negative", func(t *testing.T) {
		got, err := IntToInt32(-7)
		assert.NoError(t, err)
		assert.Equal(t, int32(-7), got)
	})

	t.Run("valid max int32", func(t *testing.T) {
		got, err := IntToInt32(math.MaxInt32)
		assert.NoError(t, err)
		assert.Equal(t, int32(math.MaxInt32), got)
	})

	t.Run("invalid too large", func(t *testing.T) {
		_, err := IntToInt32(math.MaxInt32 + 1)
		assert.Error(t, err)
	})
}

func TestIntToUint64(t *testing.T) {
	got, err := IntToUint64(123)
	assert.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	_, err = IntToUint64(-1)
	assert.Error(t, err)
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	assert.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestAddressRoundTrip(t *testing.T) {
	addr := uintptr(0xdeadbeef)
	back, err := Uint64ToUintptr(UintptrToUint64(addr))
	assert.NoError(t, err)
	assert.Equal(t, addr, back)
}

func TestCheckedMul(t *testing.T) {
	got, err := CheckedMul(3, 4)
	assert.NoError(t, err)
	assert.Equal(t, 12, got)

	got, err = CheckedMul(0, math.MaxInt)
	assert.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = CheckedMul(math.MaxInt, 2)
	assert.Error(t, err)

	_, err = CheckedMul(-1, 2)
	assert.Error(t, err)
}
