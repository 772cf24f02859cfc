package native

import (
	"cmp"
	"context"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// scorer holds reference samples ranked over a fixed feature selection.
type scorer struct {
	labels  int
	ranks   [][]float64 // per sample
	byLabel [][]int     // sample indices per label
}

func newScorer(ref *reference, feats []int32) scorer {
	s := scorer{
		labels:  ref.labels,
		ranks:   make([][]float64, ref.samples),
		byLabel: make([][]int, ref.labels),
	}

	vals := make([]float64, len(feats))
	order := make([]int, len(feats))
	for i, row := range ref.ranks {
		for j, f := range feats {
			vals[j] = row[f]
		}
		s.ranks[i] = make([]float64, len(feats))
		rankInto(s.ranks[i], vals, order)
		s.byLabel[ref.sample[i]] = append(s.byLabel[ref.sample[i]], i)
	}
	return s
}

// labelScore is the q-quantile of the Spearman correlations between cell and
// the samples of label. Labels without samples score -Inf.
func (s *scorer) labelScore(cell []float64, label int32, q float64, scratch []float64) float64 {
	idx := s.byLabel[label]
	if len(idx) == 0 {
		return math.Inf(-1)
	}

	corr := scratch[:0]
	for _, i := range idx {
		corr = append(corr, correlation(cell, s.ranks[i]))
	}
	slices.Sort(corr)
	return stat.Quantile(q, stat.LinInterp, corr, nil)
}

// best returns the top scoring label. Ties go to the lowest label.
func (s *scorer) best(cell []float64, q float64, scratch []float64) int32 {
	var (
		bestLabel int32
		bestScore = math.Inf(-1)
	)
	for l := range int32(s.labels) {
		if sc := s.labelScore(cell, l, q, scratch); sc > bestScore {
			bestLabel, bestScore = l, sc
		}
	}
	return bestLabel
}

func (s *scorer) maxSamples() int {
	n := 0
	for _, idx := range s.byLabel {
		n = max(n, len(idx))
	}
	return n
}

// correlation is the Pearson correlation of two rank vectors, i.e. their
// Spearman correlation. Undefined correlations count as zero.
func correlation(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// rankInto writes the 1-based ranks of vals into dst, averaging ties.
func rankInto(dst, vals []float64, order []int) {
	order = order[:len(vals)]
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(vals[a], vals[b])
	})

	for i := 0; i < len(order); {
		j := i + 1
		for j < len(order) && vals[order[j]] == vals[order[i]] {
			j++
		}
		r := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			dst[order[k]] = r
		}
		i = j
	}
}

// cellRanker extracts and ranks one matrix column over a row selection.
type cellRanker struct {
	vals  []float64
	order []int
	ranks []float64
}

func newCellRanker(n int) *cellRanker {
	return &cellRanker{
		vals:  make([]float64, n),
		order: make([]int, n),
		ranks: make([]float64, n),
	}
}

func (c *cellRanker) rank(col []float64, rows []int32) []float64 {
	for i, r := range rows {
		c.vals[i] = col[r]
	}
	rankInto(c.ranks, c.vals, c.order)
	return c.ranks
}

// parallel runs fn over [0, n) split into contiguous chunks.
func (e *Engine) parallel(n int, fn func(lo, hi int) error) error {
	workers := min(e.workers, n)
	if workers <= 1 {
		return fn(0, n)
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := e.rc.AcquireWorker(ctx); err != nil {
				return err
			}
			defer e.rc.ReleaseWorker()
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
