package buffer

import "errors"

var (
	// ErrAllocationFailure is returned when the foreign heap cannot satisfy a request.
	ErrAllocationFailure = errors.New("buffer: allocation failure")

	// ErrInvalidHandle is returned when a buffer is used or released after it
	// was released, or registered twice.
	ErrInvalidHandle = errors.New("buffer: invalid handle")

	// ErrTypeMismatch is returned when a buffer has the wrong element type.
	ErrTypeMismatch = errors.New("buffer: element type mismatch")

	// ErrUnsupportedType is returned by Wrap for host values it cannot copy.
	ErrUnsupportedType = errors.New("buffer: unsupported host type")

	// ErrScopeClosed is returned when registering into a closed scope.
	ErrScopeClosed = errors.New("buffer: scope closed")
)
