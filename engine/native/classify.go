package native

import (
	"fmt"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

func checkQuantile(q float64) error {
	if !(q > 0 && q <= 1) {
		return fmt.Errorf("%w: quantile %v outside (0, 1]", engine.ErrInvalidArgument, q)
	}
	return nil
}

// Classify writes the best label of every cell of m into out.
func (e *Engine) Classify(mh, bh engine.Handle, quantile float64, out buffer.Span) error {
	if err := checkQuantile(quantile); err != nil {
		return err
	}
	m, err := lookup[*matrix](e, mh)
	if err != nil {
		return err
	}
	b, err := lookup[*built](e, bh)
	if err != nil {
		return err
	}
	if m.rows != b.nFeatures {
		return fmt.Errorf("%w: matrix has %d rows, reference was built for %d", engine.ErrDimensionMismatch, m.rows, b.nFeatures)
	}
	dst, err := e.int32s(out, m.cols, "output")
	if err != nil {
		return err
	}

	return e.parallel(m.cols, func(lo, hi int) error {
		cr := newCellRanker(len(b.rows))
		scratch := make([]float64, 0, b.maxSamples())
		for j := lo; j < hi; j++ {
			dst[j] = b.best(cr.rank(m.column(j), b.rows), quantile, scratch)
		}
		return nil
	})
}
