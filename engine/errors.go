package engine

import "errors"

// Engine error taxonomy. Engines wrap these sentinels with context; callers
// classify with errors.Is.
var (
	// ErrInvalidHandle is returned for released, unknown or wrongly typed handles.
	ErrInvalidHandle = errors.New("engine: invalid handle")

	// ErrMissingFeatureData is returned when serialized reference data lacks a component.
	ErrMissingFeatureData = errors.New("engine: missing feature data")

	// ErrAllocationFailure is returned when the engine cannot allocate.
	ErrAllocationFailure = errors.New("engine: allocation failure")

	// ErrInvalidArgument is returned for out-of-range scalars or indices.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrDimensionMismatch is returned when array lengths disagree.
	ErrDimensionMismatch = errors.New("engine: dimension mismatch")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine: closed")
)
