//go:build !windows

package dylib

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Status codes returned by every lk_* entry point.
const (
	statusOK int32 = iota
	statusInvalidHandle
	statusMissingFeatureData
	statusAllocationFailure
	statusInvalidArgument
	statusDimensionMismatch
)

// Options configures Open.
type Options struct {
	// Path is the library to load. If empty, EnvLibraryPath and the default
	// search paths are tried.
	Path string

	// SearchDirs are searched before the default locations.
	SearchDirs []string
}

// Engine binds a shared library exporting the lk_* C ABI. Spans are passed by
// address, so all buffers must live on the foreign heap.
type Engine struct {
	lib uintptr

	mu     sync.Mutex
	closed bool

	loadReference       func(labels uintptr, nLabels int64, markers uintptr, nMarkers int64, ranks uintptr, nRanks int64, out *uint64, samples, features, labelCount *int32, errp **byte) int32
	buildReference      func(nFeatures int32, primaryIDs uintptr, loaded uint64, refIDs uintptr, top int32, out *uint64, shared *int32, errp **byte) int32
	denseMatrix         func(nRows, nCols int32, values uintptr, out *uint64, errp **byte) int32
	subsetRows          func(m uint64, idx uintptr, n int32, out *uint64, rows, cols *int32, errp **byte) int32
	subsetColumns       func(m uint64, idx uintptr, n int32, out *uint64, rows, cols *int32, errp **byte) int32
	filterCells         func(m uint64, discard uintptr, n int32, out *uint64, rows, cols *int32, errp **byte) int32
	classify            func(m, built uint64, quantile float64, out uintptr, n int32, errp **byte) int32
	integrateReferences func(nFeatures int32, ids uintptr, nRefs int32, loaded, refIDs, built uintptr, out *uint64, errp **byte) int32
	integrateLabels     func(m uint64, assigned uintptr, nRefs int32, integrated uint64, quantile float64, out uintptr, n int32, errp **byte) int32
	free                func(h uint64) int32
	freeError           func(msg *byte)
}

// Open loads the engine library.
func Open(opts Options) (*Engine, error) {
	path := opts.Path
	if path == "" {
		path = findLibrary(opts.SearchDirs)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: set %s or install %s", ErrLibraryNotFound, EnvLibraryPath, libraryName())
	}

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dylib: failed to load %s: %w", path, err)
	}

	e := &Engine{lib: lib}
	e.register()
	return e, nil
}

func (e *Engine) register() {
	purego.RegisterLibFunc(&e.loadReference, e.lib, "lk_load_reference")
	purego.RegisterLibFunc(&e.buildReference, e.lib, "lk_build_reference")
	purego.RegisterLibFunc(&e.denseMatrix, e.lib, "lk_dense_matrix")
	purego.RegisterLibFunc(&e.subsetRows, e.lib, "lk_subset_rows")
	purego.RegisterLibFunc(&e.subsetColumns, e.lib, "lk_subset_columns")
	purego.RegisterLibFunc(&e.filterCells, e.lib, "lk_filter_cells")
	purego.RegisterLibFunc(&e.classify, e.lib, "lk_classify")
	purego.RegisterLibFunc(&e.integrateReferences, e.lib, "lk_integrate_references")
	purego.RegisterLibFunc(&e.integrateLabels, e.lib, "lk_integrate_labels")
	purego.RegisterLibFunc(&e.free, e.lib, "lk_free")
	purego.RegisterLibFunc(&e.freeError, e.lib, "lk_free_error")
}

func (e *Engine) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	return nil
}

// result converts a status code and error message into an engine error.
func (e *Engine) result(op string, status int32, msg *byte) error {
	if msg != nil {
		defer e.freeError(msg)
	}
	return statusError(op, status, goString(msg))
}

func statusError(op string, status int32, msg string) error {
	var sentinel error
	switch status {
	case statusOK:
		return nil
	case statusInvalidHandle:
		sentinel = engine.ErrInvalidHandle
	case statusMissingFeatureData:
		sentinel = engine.ErrMissingFeatureData
	case statusAllocationFailure:
		sentinel = engine.ErrAllocationFailure
	case statusInvalidArgument:
		sentinel = engine.ErrInvalidArgument
	case statusDimensionMismatch:
		sentinel = engine.ErrDimensionMismatch
	default:
		return fmt.Errorf("dylib: %s: unknown status %d: %s", op, status, msg)
	}
	if msg == "" {
		return fmt.Errorf("%w: %s", sentinel, op)
	}
	return fmt.Errorf("%w: %s: %s", sentinel, op, msg)
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

func int32Arg(name string, v int) (int32, error) {
	if v < 0 || v > 1<<31-1 {
		return 0, fmt.Errorf("%w: %s = %d", engine.ErrInvalidArgument, name, v)
	}
	return int32(v), nil
}

func requireType(s buffer.Span, t buffer.ElementType, name string) error {
	if s.Type != t {
		return fmt.Errorf("%w: %s must be %s, got %s", engine.ErrInvalidArgument, name, t, s.Type)
	}
	return nil
}

// LoadReference implements engine.Engine.
func (e *Engine) LoadReference(labels, markers, ranks buffer.Span) (engine.ReferenceInfo, error) {
	if err := e.check(); err != nil {
		return engine.ReferenceInfo{}, err
	}
	for _, s := range []buffer.Span{labels, markers, ranks} {
		if err := requireType(s, buffer.Uint8, "reference data"); err != nil {
			return engine.ReferenceInfo{}, err
		}
	}

	var (
		h                       uint64
		samples, features, nLab int32
		msg                     *byte
	)
	status := e.loadReference(
		labels.Addr, int64(labels.Len),
		markers.Addr, int64(markers.Len),
		ranks.Addr, int64(ranks.Len),
		&h, &samples, &features, &nLab, &msg,
	)
	if err := e.result("load reference", status, msg); err != nil {
		return engine.ReferenceInfo{}, err
	}
	return engine.ReferenceInfo{
		Handle:   engine.Handle(h),
		Samples:  int(samples),
		Features: int(features),
		Labels:   int(nLab),
	}, nil
}

// BuildReference implements engine.Engine.
func (e *Engine) BuildReference(nFeatures int, primaryIDs buffer.Span, loaded engine.Handle, refIDs buffer.Span, top int) (engine.BuiltInfo, error) {
	if err := e.check(); err != nil {
		return engine.BuiltInfo{}, err
	}
	nf, err := int32Arg("nFeatures", nFeatures)
	if err != nil {
		return engine.BuiltInfo{}, err
	}
	tk, err := int32Arg("top", top)
	if err != nil {
		return engine.BuiltInfo{}, err
	}
	if err := requireType(primaryIDs, buffer.Int32, "primary ids"); err != nil {
		return engine.BuiltInfo{}, err
	}
	if err := requireType(refIDs, buffer.Int32, "reference ids"); err != nil {
		return engine.BuiltInfo{}, err
	}
	if primaryIDs.Len != nFeatures {
		return engine.BuiltInfo{}, fmt.Errorf("%w: %d primary ids for %d features", engine.ErrDimensionMismatch, primaryIDs.Len, nFeatures)
	}

	var (
		h      uint64
		shared int32
		msg    *byte
	)
	status := e.buildReference(nf, primaryIDs.Addr, uint64(loaded), refIDs.Addr, tk, &h, &shared, &msg)
	if err := e.result("build reference", status, msg); err != nil {
		return engine.BuiltInfo{}, err
	}
	return engine.BuiltInfo{Handle: engine.Handle(h), SharedFeatures: int(shared)}, nil
}

// NewDenseMatrix implements engine.Engine.
func (e *Engine) NewDenseMatrix(nRows, nCols int, values buffer.Span) (engine.MatrixInfo, error) {
	if err := e.check(); err != nil {
		return engine.MatrixInfo{}, err
	}
	r, err := int32Arg("nRows", nRows)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	c, err := int32Arg("nCols", nCols)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	if err := requireType(values, buffer.Float64, "values"); err != nil {
		return engine.MatrixInfo{}, err
	}
	if values.Len != nRows*nCols {
		return engine.MatrixInfo{}, fmt.Errorf("%w: %d values for %d x %d", engine.ErrDimensionMismatch, values.Len, nRows, nCols)
	}

	var (
		h   uint64
		msg *byte
	)
	status := e.denseMatrix(r, c, values.Addr, &h, &msg)
	if err := e.result("dense matrix", status, msg); err != nil {
		return engine.MatrixInfo{}, err
	}
	return engine.MatrixInfo{Handle: engine.Handle(h), Rows: nRows, Cols: nCols}, nil
}

type matrixFunc func(m uint64, idx uintptr, n int32, out *uint64, rows, cols *int32, errp **byte) int32

func (e *Engine) matrixOp(op string, fn matrixFunc, m engine.Handle, s buffer.Span, t buffer.ElementType) (engine.MatrixInfo, error) {
	if err := e.check(); err != nil {
		return engine.MatrixInfo{}, err
	}
	if err := requireType(s, t, op); err != nil {
		return engine.MatrixInfo{}, err
	}
	n, err := int32Arg("length", s.Len)
	if err != nil {
		return engine.MatrixInfo{}, err
	}

	var (
		h          uint64
		rows, cols int32
		msg        *byte
	)
	status := fn(uint64(m), s.Addr, n, &h, &rows, &cols, &msg)
	if err := e.result(op, status, msg); err != nil {
		return engine.MatrixInfo{}, err
	}
	return engine.MatrixInfo{Handle: engine.Handle(h), Rows: int(rows), Cols: int(cols)}, nil
}

// SubsetRows implements engine.Engine.
func (e *Engine) SubsetRows(m engine.Handle, idx buffer.Span) (engine.MatrixInfo, error) {
	return e.matrixOp("subset rows", e.subsetRows, m, idx, buffer.Int32)
}

// SubsetColumns implements engine.Engine.
func (e *Engine) SubsetColumns(m engine.Handle, idx buffer.Span) (engine.MatrixInfo, error) {
	return e.matrixOp("subset columns", e.subsetColumns, m, idx, buffer.Int32)
}

// FilterCells implements engine.Engine.
func (e *Engine) FilterCells(m engine.Handle, discard buffer.Span) (engine.MatrixInfo, error) {
	return e.matrixOp("filter cells", e.filterCells, m, discard, buffer.Uint8)
}

// Classify implements engine.Engine.
func (e *Engine) Classify(m, built engine.Handle, quantile float64, out buffer.Span) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := requireType(out, buffer.Int32, "output"); err != nil {
		return err
	}
	n, err := int32Arg("output length", out.Len)
	if err != nil {
		return err
	}

	var msg *byte
	status := e.classify(uint64(m), uint64(built), quantile, out.Addr, n, &msg)
	return e.result("classify", status, msg)
}

// IntegrateReferences implements engine.Engine.
func (e *Engine) IntegrateReferences(nFeatures int, ids buffer.Span, loaded, refIDs, built buffer.Span) (engine.IntegratedInfo, error) {
	if err := e.check(); err != nil {
		return engine.IntegratedInfo{}, err
	}
	nf, err := int32Arg("nFeatures", nFeatures)
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	if err := requireType(ids, buffer.Int32, "ids"); err != nil {
		return engine.IntegratedInfo{}, err
	}
	if ids.Len != nFeatures {
		return engine.IntegratedInfo{}, fmt.Errorf("%w: %d ids for %d features", engine.ErrDimensionMismatch, ids.Len, nFeatures)
	}
	for _, s := range []buffer.Span{loaded, refIDs, built} {
		if err := requireType(s, buffer.Uint64, "handle table"); err != nil {
			return engine.IntegratedInfo{}, err
		}
	}
	if refIDs.Len != loaded.Len || built.Len != loaded.Len {
		return engine.IntegratedInfo{}, fmt.Errorf("%w: %d loaded, %d id tables, %d built", engine.ErrDimensionMismatch, loaded.Len, refIDs.Len, built.Len)
	}
	nRefs, err := int32Arg("references", loaded.Len)
	if err != nil {
		return engine.IntegratedInfo{}, err
	}

	var (
		h   uint64
		msg *byte
	)
	status := e.integrateReferences(nf, ids.Addr, nRefs, loaded.Addr, refIDs.Addr, built.Addr, &h, &msg)
	if err := e.result("integrate references", status, msg); err != nil {
		return engine.IntegratedInfo{}, err
	}
	return engine.IntegratedInfo{Handle: engine.Handle(h), References: loaded.Len}, nil
}

// IntegrateLabels implements engine.Engine.
func (e *Engine) IntegrateLabels(m engine.Handle, assigned buffer.Span, integrated engine.Handle, quantile float64, out buffer.Span) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := requireType(assigned, buffer.Uint64, "assigned"); err != nil {
		return err
	}
	if err := requireType(out, buffer.Int32, "output"); err != nil {
		return err
	}
	nRefs, err := int32Arg("references", assigned.Len)
	if err != nil {
		return err
	}
	n, err := int32Arg("output length", out.Len)
	if err != nil {
		return err
	}

	var msg *byte
	status := e.integrateLabels(uint64(m), assigned.Addr, nRefs, uint64(integrated), quantile, out.Addr, n, &msg)
	return e.result("integrate labels", status, msg)
}

// Free implements engine.Engine.
func (e *Engine) Free(h engine.Handle) error {
	if err := e.check(); err != nil {
		return err
	}
	return statusError("free", e.free(uint64(h)), "")
}

// Close unloads the library. Handles are invalid afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if err := purego.Dlclose(e.lib); err != nil {
		return fmt.Errorf("dylib: failed to unload engine library: %w", err)
	}
	return nil
}
