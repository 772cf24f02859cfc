package labelkit

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

// IntegratedReferences combines several built references so that cells
// labelled by each of them can be assigned the best fitting reference. It
// does not own the references it was created from.
type IntegratedReferences struct {
	object
	refs     int
	expected int
}

// NumberOfReferences returns the number of combined references.
func (r *IntegratedReferences) NumberOfReferences() int { return r.refs }

// ExpectedFeatureCount returns the number of primary features inputs must have.
func (r *IntegratedReferences) ExpectedFeatureCount() int { return r.expected }

// Free releases the engine object. Later use fails with ErrInvalidHandle.
func (r *IntegratedReferences) Free() error { return r.free() }

// IntegrateReferences combines the references refs, whose features are
// refFeatures and which were built for features as built. All three slices
// have one entry per reference. Reference features are harmonized in order
// against one cumulative index seeded with the primary features.
func (s *Session) IntegrateReferences(ctx context.Context, features []string, refs []*LoadedReference, refFeatures [][]string, built []*BuiltReference) (out *IntegratedReferences, err error) {
	const call = "IntegrateReferences"

	start := time.Now()
	defer func() {
		s.metrics.RecordIntegrate(len(refs), time.Since(start), err)
		s.logger.LogOperation(ctx, call, err, "references", len(refs), "features", len(features))
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	if len(refFeatures) != len(refs) {
		return nil, mismatch(call, "refFeatures", len(refs), len(refFeatures))
	}
	if len(built) != len(refs) {
		return nil, mismatch(call, "built", len(refs), len(built))
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no references", ErrInvalidArgument)
	}

	loadedTable := engine.NewHandleTable(len(refs))
	builtTable := engine.NewHandleTable(len(refs))
	for i, ref := range refs {
		if ref == nil || built[i] == nil {
			return nil, fmt.Errorf("%w: nil reference at position %d", ErrInvalidArgument, i)
		}
		if len(refFeatures[i]) != ref.features {
			return nil, mismatch(call, fmt.Sprintf("refFeatures[%d]", i), ref.features, len(refFeatures[i]))
		}
		if built[i].expected != len(features) {
			return nil, mismatch(call, fmt.Sprintf("built[%d]", i), len(features), built[i].expected)
		}
		h, err := ref.handle(s)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		loadedTable.SetHandle(i, h)
		if h, err = built[i].handle(s); err != nil {
			return nil, fmt.Errorf("built reference %d: %w", i, err)
		}
		builtTable.SetHandle(i, h)
	}

	idx, err := s.primaryIndex(ctx, call, features)
	if err != nil {
		return nil, err
	}
	primary := primaryColumns(idx, features)

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &out, &err)

	ids, err := scope.Wrap(primary)
	if err != nil {
		return nil, translateError(err)
	}

	columnTable := engine.NewHandleTable(len(refs))
	for i := range refs {
		cols, err := scope.Wrap(idx.HarmonizeSecondary(refFeatures[i]))
		if err != nil {
			return nil, translateError(err)
		}
		columnTable.SetSpan(i, cols.Span())
	}

	var tables [3]*buffer.Buffer
	for i, t := range []*engine.HandleTable{loadedTable, columnTable, builtTable} {
		if tables[i], err = scope.Wrap(t.Entries()); err != nil {
			return nil, translateError(err)
		}
	}

	info, err := s.eng.IntegrateReferences(len(features), ids.Span(), tables[0].Span(), tables[1].Span(), tables[2].Span())
	if err != nil {
		return nil, translateError(err)
	}
	return &IntegratedReferences{
		object:   object{s: s, kind: "integrated references", h: info.Handle},
		refs:     info.References,
		expected: len(features),
	}, nil
}

// IntegrateCellLabels picks, for every cell of in, the reference whose
// assigned label fits best. assigned[r][c] is the label reference r gave
// cell c. The result holds one reference index per cell; ResolveLabels maps
// it back to labels.
func (s *Session) IntegrateCellLabels(ctx context.Context, in Input, assigned [][]int32, integrated *IntegratedReferences, optFns ...ClassifyOption) (winners []int32, err error) {
	const call = "IntegrateCellLabels"

	start := time.Now()
	defer func() {
		s.metrics.RecordIntegrate(len(assigned), time.Since(start), err)
		s.logger.LogOperation(ctx, call, err, "references", len(assigned), "cells", len(winners))
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	opts, err := applyClassifyOptions(optFns)
	if err != nil {
		return nil, err
	}
	if integrated == nil {
		return nil, fmt.Errorf("%w: nil integrated references", ErrInvalidArgument)
	}
	ih, err := integrated.handle(s)
	if err != nil {
		return nil, err
	}

	rows, cols, err := in.shape(s, call)
	if err != nil {
		return nil, err
	}
	if rows != integrated.expected {
		return nil, mismatch(call, "integrated references", integrated.expected, rows)
	}
	if len(assigned) != integrated.refs {
		return nil, mismatch(call, "assigned", integrated.refs, len(assigned))
	}
	for i, a := range assigned {
		if len(a) != cols {
			return nil, mismatch(call, fmt.Sprintf("assigned[%d]", i), cols, len(a))
		}
	}
	if err := checkOutput(call, opts.out, cols); err != nil {
		return nil, err
	}

	scope := s.reg.NewScope()
	defer closeScope(scope, &err)

	table := engine.NewHandleTable(len(assigned))
	for i, a := range assigned {
		buf, err := scope.Wrap(a)
		if err != nil {
			return nil, translateError(err)
		}
		table.SetSpan(i, buf.Span())
	}
	tbuf, err := scope.Wrap(table.Entries())
	if err != nil {
		return nil, translateError(err)
	}

	mat, err := in.materialize(s, scope)
	if err != nil {
		return nil, err
	}

	out, err := s.output(scope, opts.out, cols)
	if err != nil {
		return nil, err
	}

	if err := s.eng.IntegrateLabels(mat, tbuf.Span(), ih, opts.quantile, out.Span()); err != nil {
		return nil, translateError(err)
	}
	return collect(out, opts.out != nil), nil
}

// ResolveLabels maps winning reference indices back to labels:
// labels[c] = assigned[winners[c]][c].
func ResolveLabels(winners []int32, assigned [][]int32) ([]int32, error) {
	labels := make([]int32, len(winners))
	for c, w := range winners {
		if w < 0 || int(w) >= len(assigned) {
			return nil, fmt.Errorf("%w: winner %d of cell %d outside [0, %d)", ErrInvalidArgument, w, c, len(assigned))
		}
		if len(assigned[w]) != len(winners) {
			return nil, mismatch("ResolveLabels", fmt.Sprintf("assigned[%d]", w), len(winners), len(assigned[w]))
		}
		labels[c] = assigned[w][c]
	}
	return labels, nil
}
