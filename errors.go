package labelkit

import (
	"errors"
	"fmt"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

var (
	// ErrDimensionMismatch is returned when array shapes disagree.
	ErrDimensionMismatch = errors.New("labelkit: dimension mismatch")

	// ErrMissingFeatureData is returned when serialized reference data lacks a component.
	ErrMissingFeatureData = errors.New("labelkit: missing feature data")

	// ErrInvalidHandle is returned when a released or unknown object is used.
	ErrInvalidHandle = errors.New("labelkit: invalid handle")

	// ErrAllocationFailure is returned when foreign memory cannot be allocated.
	ErrAllocationFailure = errors.New("labelkit: allocation failure")

	// ErrInvalidArgument is returned for out-of-range scalars, indices or
	// unsupported element types.
	ErrInvalidArgument = errors.New("labelkit: invalid argument")

	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("labelkit: session closed")
)

// DimensionMismatchError reports a shape check that failed before any
// engine call was made.
//
// errors.Is(err, ErrDimensionMismatch) holds for every DimensionMismatchError.
type DimensionMismatchError struct {
	// Argument names the offending argument, e.g. "refFeatures[1]".
	Argument string
	// Call names the operation the argument was checked against.
	Call     string
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("labelkit: %s: dimension mismatch for %s: expected %d, got %d", e.Call, e.Argument, e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

func mismatch(call, argument string, expected, actual int) error {
	return &DimensionMismatchError{Argument: argument, Call: call, Expected: expected, Actual: actual}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already in the package taxonomy.
	for _, sentinel := range []error{ErrDimensionMismatch, ErrMissingFeatureData, ErrInvalidHandle, ErrAllocationFailure, ErrInvalidArgument, ErrClosed} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch {
	case errors.Is(err, engine.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	case errors.Is(err, engine.ErrMissingFeatureData):
		return fmt.Errorf("%w: %w", ErrMissingFeatureData, err)
	case errors.Is(err, engine.ErrInvalidHandle), errors.Is(err, buffer.ErrInvalidHandle):
		return fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	case errors.Is(err, engine.ErrAllocationFailure), errors.Is(err, buffer.ErrAllocationFailure):
		return fmt.Errorf("%w: %w", ErrAllocationFailure, err)
	case errors.Is(err, engine.ErrInvalidArgument),
		errors.Is(err, buffer.ErrTypeMismatch),
		errors.Is(err, buffer.ErrUnsupportedType):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, engine.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
