package native

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/internal/conv"
)

// integrated holds several references projected onto the union of the
// features their built counterparts selected.
type integrated struct {
	nFeatures int
	refs      []integratedRef
}

type integratedRef struct {
	scorer
	rows []int32
}

// IntegrateReferences combines built references. Each reference is scored
// over the features of the union that it has itself.
func (e *Engine) IntegrateReferences(nFeatures int, ids buffer.Span, loaded, refIDs, builtTbl buffer.Span) (engine.IntegratedInfo, error) {
	pids, err := e.int32s(ids, nFeatures, "ids")
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	lh, err := e.handles(loaded, "loaded")
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	rh, err := e.handles(refIDs, "reference ids")
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	bh, err := e.handles(builtTbl, "built")
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	if len(rh) != len(lh) || len(bh) != len(lh) {
		return engine.IntegratedInfo{}, fmt.Errorf("%w: %d loaded, %d id tables, %d built", engine.ErrDimensionMismatch, len(lh), len(rh), len(bh))
	}
	if len(lh) == 0 {
		return engine.IntegratedInfo{}, fmt.Errorf("%w: no references", engine.ErrInvalidArgument)
	}

	primary, err := newPrimarySpace(pids)
	if err != nil {
		return engine.IntegratedInfo{}, err
	}

	refs := make([]*reference, len(lh))
	rids := make([][]int32, len(lh))
	union := roaring.New()
	for i := range lh {
		if refs[i], err = lookup[*reference](e, lh[i]); err != nil {
			return engine.IntegratedInfo{}, fmt.Errorf("reference %d: %w", i, err)
		}
		b, err := lookup[*built](e, bh[i])
		if err != nil {
			return engine.IntegratedInfo{}, fmt.Errorf("built reference %d: %w", i, err)
		}
		if b.nFeatures != nFeatures {
			return engine.IntegratedInfo{}, fmt.Errorf("%w: built reference %d expects %d features, got %d", engine.ErrDimensionMismatch, i, b.nFeatures, nFeatures)
		}
		union.Or(b.global)

		addr, err := conv.Uint64ToUintptr(uint64(rh[i]))
		if err != nil {
			return engine.IntegratedInfo{}, fmt.Errorf("%w: %w", engine.ErrInvalidArgument, err)
		}
		span := buffer.Span{Addr: addr, Len: refs[i].features, Type: buffer.Int32}
		if rids[i], err = e.int32s(span, -1, fmt.Sprintf("reference ids %d", i)); err != nil {
			return engine.IntegratedInfo{}, err
		}
	}
	union.And(primary.ids)

	out := &integrated{nFeatures: nFeatures, refs: make([]integratedRef, len(refs))}
	for i, ref := range refs {
		var feats, rows []int32
		for f, id := range rids[i] {
			if id >= 0 && union.Contains(uint32(id)) {
				feats = append(feats, int32(f)) //nolint:gosec // f < ref.features
				rows = append(rows, primary.rows[id])
			}
		}
		out.refs[i] = integratedRef{scorer: newScorer(ref, feats), rows: rows}
	}

	h, err := e.put(out)
	if err != nil {
		return engine.IntegratedInfo{}, err
	}
	return engine.IntegratedInfo{Handle: h, References: len(out.refs)}, nil
}

// IntegrateLabels writes the index of the best reference of every cell into
// out. Each reference is scored on the label it assigned to the cell; ties go
// to the lowest reference index.
func (e *Engine) IntegrateLabels(mh engine.Handle, assigned buffer.Span, ih engine.Handle, quantile float64, out buffer.Span) error {
	if err := checkQuantile(quantile); err != nil {
		return err
	}
	m, err := lookup[*matrix](e, mh)
	if err != nil {
		return err
	}
	in, err := lookup[*integrated](e, ih)
	if err != nil {
		return err
	}
	if m.rows != in.nFeatures {
		return fmt.Errorf("%w: matrix has %d rows, references were integrated for %d", engine.ErrDimensionMismatch, m.rows, in.nFeatures)
	}

	addrs, err := e.handles(assigned, "assigned")
	if err != nil {
		return err
	}
	if len(addrs) != len(in.refs) {
		return fmt.Errorf("%w: %d assignments for %d references", engine.ErrDimensionMismatch, len(addrs), len(in.refs))
	}

	labels := make([][]int32, len(addrs))
	for i, a := range addrs {
		addr, err := conv.Uint64ToUintptr(uint64(a))
		if err != nil {
			return fmt.Errorf("%w: %w", engine.ErrInvalidArgument, err)
		}
		span := buffer.Span{Addr: addr, Len: m.cols, Type: buffer.Int32}
		if labels[i], err = e.int32s(span, -1, fmt.Sprintf("assigned %d", i)); err != nil {
			return err
		}
		for j, l := range labels[i] {
			if l < 0 || int(l) >= in.refs[i].labels {
				return fmt.Errorf("%w: assigned %d cell %d has label %d outside [0, %d)", engine.ErrInvalidArgument, i, j, l, in.refs[i].labels)
			}
		}
	}

	dst, err := e.int32s(out, m.cols, "output")
	if err != nil {
		return err
	}

	return e.parallel(m.cols, func(lo, hi int) error {
		rankers := make([]*cellRanker, len(in.refs))
		maxSamples := 0
		for i := range in.refs {
			rankers[i] = newCellRanker(len(in.refs[i].rows))
			maxSamples = max(maxSamples, in.refs[i].maxSamples())
		}
		scratch := make([]float64, 0, maxSamples)

		for j := lo; j < hi; j++ {
			col := m.column(j)
			var (
				best      int32
				bestScore = math.Inf(-1)
			)
			for i := range in.refs {
				ref := &in.refs[i]
				sc := ref.labelScore(rankers[i].rank(col, ref.rows), labels[i][j], quantile, scratch)
				if sc > bestScore {
					best, bestScore = int32(i), sc //nolint:gosec // bounded by reference count
				}
			}
			dst[j] = best
		}
		return nil
	})
}
