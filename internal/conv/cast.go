package conv

import (
	"fmt"
	"math"
)

// IntToInt32 converts int to int32 safely.
func IntToInt32(v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int32", v)
	}
	return int32(v), nil
}

// IntToUint64 converts int to uint64 safely.
func IntToUint64(v int) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint64 (negative)", v)
	}
	return uint64(v), nil
}

// Uint64ToInt converts uint64 to int safely.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// Uint64ToUintptr converts a 64-bit address table entry to a native address.
func Uint64ToUintptr(v uint64) (uintptr, error) {
	if uint64(uintptr(v)) != v {
		return 0, fmt.Errorf("address overflow: %#x does not fit in uintptr", v)
	}
	return uintptr(v), nil
}

// UintptrToUint64 widens a native address for storage in a 64-bit table.
func UintptrToUint64(v uintptr) uint64 {
	return uint64(v)
}

// CheckedMul multiplies two non-negative ints, failing on overflow.
func CheckedMul(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("integer overflow: negative operand in %d * %d", a, b)
	}
	if a != 0 && b > math.MaxInt/a {
		return 0, fmt.Errorf("integer overflow: %d * %d exceeds int", a, b)
	}
	return a * b, nil
}
