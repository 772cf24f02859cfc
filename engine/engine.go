package engine

import "github.com/hupe1980/labelkit/buffer"

// Handle identifies an engine-owned object. The zero Handle is never valid.
type Handle uint64

// ReferenceInfo describes a loaded reference.
type ReferenceInfo struct {
	Handle   Handle
	Samples  int
	Features int
	Labels   int
}

// BuiltInfo describes a reference built against a primary feature space.
type BuiltInfo struct {
	Handle         Handle
	SharedFeatures int
}

// MatrixInfo describes a matrix with features in rows and cells in columns.
type MatrixInfo struct {
	Handle Handle
	Rows   int
	Cols   int
}

// IntegratedInfo describes an integrated reference set.
type IntegratedInfo struct {
	Handle     Handle
	References int
}

// Engine is the foreign compute engine.
//
// Every argument that refers to array data is a buffer.Span on the foreign
// heap; the engine reads and writes those spans during the call and never
// retains them. Handles returned by the engine are owned by the caller and
// must be passed to Free exactly once. Calls block until the engine is done.
type Engine interface {
	// LoadReference parses serialized reference data: labels (one integer per
	// line), markers (tab separated) and ranks (comma separated, one row per
	// sample). All three spans are Uint8.
	LoadReference(labels, markers, ranks buffer.Span) (ReferenceInfo, error)

	// BuildReference builds a reference restricted to the features it shares
	// with the primary dataset. primaryIDs (Int32, nFeatures) holds the global
	// column of each primary row and refIDs (Int32, one per reference feature)
	// the global column of each reference feature. For every ordered pair of
	// labels the leading top markers among the shared features are kept.
	BuildReference(nFeatures int, primaryIDs buffer.Span, loaded Handle, refIDs buffer.Span, top int) (BuiltInfo, error)

	// NewDenseMatrix copies a column-major Float64 span into a new matrix.
	NewDenseMatrix(nRows, nCols int, values buffer.Span) (MatrixInfo, error)

	// SubsetRows returns a new matrix with the rows listed in idx (Int32).
	SubsetRows(m Handle, idx buffer.Span) (MatrixInfo, error)

	// SubsetColumns returns a new matrix with the columns listed in idx (Int32).
	SubsetColumns(m Handle, idx buffer.Span) (MatrixInfo, error)

	// FilterCells returns a new matrix without the columns flagged in discard (Uint8).
	FilterCells(m Handle, discard buffer.Span) (MatrixInfo, error)

	// Classify writes the best label of every column of m into out (Int32).
	Classify(m, built Handle, quantile float64, out buffer.Span) error

	// IntegrateReferences combines several built references. loaded, refIDs
	// and built are Uint64 tables (see HandleTable) with one entry per
	// reference; refIDs entries are addresses of Int32 spans.
	IntegrateReferences(nFeatures int, ids buffer.Span, loaded, refIDs, built buffer.Span) (IntegratedInfo, error)

	// IntegrateLabels writes, for every column of m, the index of the
	// reference whose assigned label fits best into out (Int32). assigned is
	// a Uint64 table of Int32 span addresses, one per reference.
	IntegrateLabels(m Handle, assigned buffer.Span, integrated Handle, quantile float64, out buffer.Span) error

	// Free releases an engine object.
	Free(h Handle) error

	// Close releases the engine itself.
	Close() error
}
