package native

import (
	"fmt"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/internal/conv"
)

// matrix is a dense column-major matrix with features in rows.
type matrix struct {
	rows, cols int
	data       []float64
}

func (m *matrix) column(j int) []float64 {
	return m.data[j*m.rows : (j+1)*m.rows]
}

func (m *matrix) info(h engine.Handle) engine.MatrixInfo {
	return engine.MatrixInfo{Handle: h, Rows: m.rows, Cols: m.cols}
}

// NewDenseMatrix copies nRows*nCols column-major values into a new matrix.
func (e *Engine) NewDenseMatrix(nRows, nCols int, values buffer.Span) (engine.MatrixInfo, error) {
	if nRows < 0 || nCols < 0 {
		return engine.MatrixInfo{}, fmt.Errorf("%w: %d x %d matrix", engine.ErrInvalidArgument, nRows, nCols)
	}
	n, err := conv.CheckedMul(nRows, nCols)
	if err != nil {
		return engine.MatrixInfo{}, fmt.Errorf("%w: %w", engine.ErrAllocationFailure, err)
	}
	vals, err := e.float64s(values, n, "values")
	if err != nil {
		return engine.MatrixInfo{}, err
	}

	m := &matrix{rows: nRows, cols: nCols, data: append([]float64(nil), vals...)}
	return e.putMatrix(m)
}

// SubsetRows keeps the rows listed in idx, in that order.
func (e *Engine) SubsetRows(h engine.Handle, idx buffer.Span) (engine.MatrixInfo, error) {
	src, err := lookup[*matrix](e, h)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	rows, err := e.indices(idx, src.rows, "row indices")
	if err != nil {
		return engine.MatrixInfo{}, err
	}

	m := &matrix{rows: len(rows), cols: src.cols, data: make([]float64, 0, len(rows)*src.cols)}
	for j := range src.cols {
		col := src.column(j)
		for _, r := range rows {
			m.data = append(m.data, col[r])
		}
	}
	return e.putMatrix(m)
}

// SubsetColumns keeps the columns listed in idx, in that order.
func (e *Engine) SubsetColumns(h engine.Handle, idx buffer.Span) (engine.MatrixInfo, error) {
	src, err := lookup[*matrix](e, h)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	cols, err := e.indices(idx, src.cols, "column indices")
	if err != nil {
		return engine.MatrixInfo{}, err
	}

	m := &matrix{rows: src.rows, cols: len(cols), data: make([]float64, 0, src.rows*len(cols))}
	for _, c := range cols {
		m.data = append(m.data, src.column(int(c))...)
	}
	return e.putMatrix(m)
}

// FilterCells drops the columns whose discard flag is non-zero.
func (e *Engine) FilterCells(h engine.Handle, discard buffer.Span) (engine.MatrixInfo, error) {
	src, err := lookup[*matrix](e, h)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	flags, err := e.bytes(discard, buffer.Uint8, src.cols, "discard")
	if err != nil {
		return engine.MatrixInfo{}, err
	}

	m := &matrix{rows: src.rows}
	for j, drop := range flags {
		if drop != 0 {
			continue
		}
		m.data = append(m.data, src.column(j)...)
		m.cols++
	}
	return e.putMatrix(m)
}

func (e *Engine) putMatrix(m *matrix) (engine.MatrixInfo, error) {
	h, err := e.put(m)
	if err != nil {
		return engine.MatrixInfo{}, err
	}
	return m.info(h), nil
}

func (e *Engine) indices(s buffer.Span, limit int, name string) ([]int32, error) {
	idx, err := e.int32s(s, -1, name)
	if err != nil {
		return nil, err
	}
	for i, v := range idx {
		if v < 0 || int(v) >= limit {
			return nil, fmt.Errorf("%w: %s[%d] = %d outside [0, %d)", engine.ErrInvalidArgument, name, i, v, limit)
		}
	}
	return idx, nil
}
