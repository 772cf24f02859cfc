package labelkit

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/internal/conv"
)

// Matrix is an engine-held expression matrix with features in rows and
// cells in columns.
type Matrix struct {
	object
	rows int
	cols int
}

// NumberOfRows returns the number of features.
func (m *Matrix) NumberOfRows() int { return m.rows }

// NumberOfColumns returns the number of cells.
func (m *Matrix) NumberOfColumns() int { return m.cols }

// Free releases the engine object. Later use fails with ErrInvalidHandle.
func (m *Matrix) Free() error { return m.free() }

func (s *Session) newMatrix(info engine.MatrixInfo) *Matrix {
	return &Matrix{
		object: object{s: s, kind: "matrix", h: info.Handle},
		rows:   info.Rows,
		cols:   info.Cols,
	}
}

// denseLen returns nRows*nCols, rejecting negative or overflowing shapes.
func denseLen(nRows, nCols int) (int, error) {
	if nRows < 0 || nCols < 0 {
		return 0, fmt.Errorf("%w: negative shape %dx%d", ErrInvalidArgument, nRows, nCols)
	}
	n, err := conv.CheckedMul(nRows, nCols)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return n, nil
}

// NewDenseMatrix creates a matrix from column-major values: the nRows
// feature values of cell 0 first, then those of cell 1, and so on.
func (s *Session) NewDenseMatrix(ctx context.Context, values []float64, nRows, nCols int) (m *Matrix, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordMatrix(time.Since(start), err)
		s.logger.LogOperation(ctx, "NewDenseMatrix", err, "rows", nRows, "cols", nCols)
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	n, err := denseLen(nRows, nCols)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, mismatch("NewDenseMatrix", "values", n, len(values))
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &m, &err)

	buf, err := scope.Wrap(values)
	if err != nil {
		return nil, translateError(err)
	}
	info, err := s.eng.NewDenseMatrix(nRows, nCols, buf.Span())
	if err != nil {
		return nil, translateError(err)
	}
	return s.newMatrix(info), nil
}

// SubsetRows returns a new matrix holding the listed rows of m, in order.
func (s *Session) SubsetRows(ctx context.Context, m *Matrix, indices []int) (*Matrix, error) {
	return s.subset(ctx, "SubsetRows", m, indices, true)
}

// SubsetColumns returns a new matrix holding the listed columns of m, in order.
func (s *Session) SubsetColumns(ctx context.Context, m *Matrix, indices []int) (*Matrix, error) {
	return s.subset(ctx, "SubsetColumns", m, indices, false)
}

func (s *Session) subset(ctx context.Context, call string, m *Matrix, indices []int, rows bool) (out *Matrix, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordMatrix(time.Since(start), err)
		s.logger.LogOperation(ctx, call, err, "indices", len(indices))
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrInvalidArgument)
	}
	h, err := m.handle(s)
	if err != nil {
		return nil, err
	}

	limit := m.cols
	if rows {
		limit = m.rows
	}
	idx := make([]int32, len(indices))
	for i, v := range indices {
		if v < 0 || v >= limit {
			return nil, fmt.Errorf("%w: %s index %d at position %d outside [0, %d)", ErrInvalidArgument, call, v, i, limit)
		}
		if idx[i], err = conv.IntToInt32(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &out, &err)

	buf, err := scope.Wrap(idx)
	if err != nil {
		return nil, translateError(err)
	}

	var info engine.MatrixInfo
	if rows {
		info, err = s.eng.SubsetRows(h, buf.Span())
	} else {
		info, err = s.eng.SubsetColumns(h, buf.Span())
	}
	if err != nil {
		return nil, translateError(err)
	}
	return s.newMatrix(info), nil
}

// FilterCells returns a new matrix without the columns flagged in discard,
// which must have one entry per column of m.
func (s *Session) FilterCells(ctx context.Context, m *Matrix, discard []bool) (out *Matrix, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordMatrix(time.Since(start), err)
		s.logger.LogOperation(ctx, "FilterCells", err, "cells", len(discard))
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrInvalidArgument)
	}
	h, err := m.handle(s)
	if err != nil {
		return nil, err
	}
	if len(discard) != m.cols {
		return nil, mismatch("FilterCells", "discard", m.cols, len(discard))
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &out, &err)

	buf, err := scope.Wrap(discard)
	if err != nil {
		return nil, translateError(err)
	}
	info, err := s.eng.FilterCells(h, buf.Span())
	if err != nil {
		return nil, translateError(err)
	}
	return s.newMatrix(info), nil
}

type inputKind uint8

const (
	inputMatrix inputKind = iota + 1
	inputDense
	inputHost
)

// Input is the expression data a classification runs on: either an existing
// Matrix or a dense column-major Float64 array that is turned into a
// temporary matrix for the duration of the call.
type Input struct {
	kind      inputKind
	matrix    *Matrix
	buf       *buffer.Buffer
	host      []float64
	nFeatures int
	nCells    int
}

// MatrixInput uses an existing matrix.
func MatrixInput(m *Matrix) Input {
	return Input{kind: inputMatrix, matrix: m}
}

// DenseInput uses a Float64 foreign buffer of nFeatures*nCells values in
// column-major order.
func DenseInput(buf *buffer.Buffer, nFeatures, nCells int) Input {
	return Input{kind: inputDense, buf: buf, nFeatures: nFeatures, nCells: nCells}
}

// DenseInputFromHost uses host values of nFeatures*nCells in column-major
// order. They are copied to the foreign heap for the call.
func DenseInputFromHost(values []float64, nFeatures, nCells int) Input {
	return Input{kind: inputHost, host: values, nFeatures: nFeatures, nCells: nCells}
}

// shape validates the input without touching the engine and returns its
// feature and cell counts.
func (in Input) shape(s *Session, call string) (rows, cols int, err error) {
	switch in.kind {
	case inputMatrix:
		if in.matrix == nil {
			return 0, 0, fmt.Errorf("%w: nil matrix", ErrInvalidArgument)
		}
		if _, err := in.matrix.handle(s); err != nil {
			return 0, 0, err
		}
		return in.matrix.rows, in.matrix.cols, nil
	case inputDense, inputHost:
		n, err := denseLen(in.nFeatures, in.nCells)
		if err != nil {
			return 0, 0, err
		}
		size := len(in.host)
		if in.kind == inputDense {
			if in.buf == nil {
				return 0, 0, fmt.Errorf("%w: nil input buffer", ErrInvalidArgument)
			}
			if in.buf.Released() {
				return 0, 0, fmt.Errorf("%w: input buffer released", ErrInvalidHandle)
			}
			if in.buf.Type() != buffer.Float64 {
				return 0, 0, fmt.Errorf("%w: input buffer must be %s, got %s", ErrInvalidArgument, buffer.Float64, in.buf.Type())
			}
			size = in.buf.Len()
		}
		if size != n {
			return 0, 0, mismatch(call, "input values", n, size)
		}
		return in.nFeatures, in.nCells, nil
	default:
		return 0, 0, fmt.Errorf("%w: empty input", ErrInvalidArgument)
	}
}

// materialize returns a matrix handle for the input. Temporary matrices are
// freed when scope closes.
func (in Input) materialize(s *Session, scope *buffer.Scope) (engine.Handle, error) {
	if in.kind == inputMatrix {
		return in.matrix.handle(s)
	}

	buf := in.buf
	if in.kind == inputHost {
		var err error
		if buf, err = scope.Wrap(in.host); err != nil {
			return 0, translateError(err)
		}
	}

	info, err := s.eng.NewDenseMatrix(in.nFeatures, in.nCells, buf.Span())
	if err != nil {
		return 0, translateError(err)
	}
	scope.Defer(func() error {
		return s.eng.Free(info.Handle)
	})
	return info.Handle, nil
}
