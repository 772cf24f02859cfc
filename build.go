package labelkit

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/labelkit/feature"
	"github.com/hupe1980/labelkit/internal/conv"
)

// BuiltReference is a reference restricted to the features it shares with a
// primary dataset. Its lifetime is independent of the LoadedReference it was
// built from.
type BuiltReference struct {
	object
	expected int
	shared   int
}

// ExpectedFeatureCount returns the number of primary features the reference
// was built for. Classification inputs must have this many rows.
func (b *BuiltReference) ExpectedFeatureCount() int { return b.expected }

// SharedFeatureCount returns how many reference features were found in the
// primary dataset.
func (b *BuiltReference) SharedFeatureCount() int { return b.shared }

// Free releases the engine object. Later use fails with ErrInvalidHandle.
func (b *BuiltReference) Free() error { return b.free() }

// primaryIndex builds the feature index of a primary dataset, honoring the
// session's duplicate policy.
func (s *Session) primaryIndex(ctx context.Context, call string, features []string) (*feature.Index[string], error) {
	if s.strict {
		idx, err := feature.BuildPrimaryStrict(features)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return idx, nil
	}
	idx := feature.BuildPrimary(features)
	if dup := len(features) - idx.Len(); dup > 0 {
		s.logger.LogDuplicateFeatures(ctx, call, dup, len(features))
	}
	return idx, nil
}

// primaryColumns returns the column of every primary row.
func primaryColumns(idx *feature.Index[string], features []string) []int32 {
	cols := make([]int32, len(features))
	for i, f := range features {
		cols[i], _ = idx.Lookup(f)
	}
	return cols
}

// BuildReference harmonizes the reference features against the primary
// features and builds the reference over the shared ones.
func (s *Session) BuildReference(ctx context.Context, features []string, ref *LoadedReference, refFeatures []string, optFns ...BuildOption) (*BuiltReference, error) {
	const call = "BuildReference"
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidArgument)
	}
	if len(refFeatures) != ref.features {
		return nil, mismatch(call, "refFeatures", ref.features, len(refFeatures))
	}
	opts, err := applyBuildOptions(optFns)
	if err != nil {
		return nil, err
	}

	idx, err := s.primaryIndex(ctx, call, features)
	if err != nil {
		return nil, err
	}
	primary := primaryColumns(idx, features)
	columns := idx.HarmonizeSecondary(refFeatures)

	return s.build(ctx, call, primary, columns, ref, opts.top)
}

// BuildHarmonized builds ref for a primary dataset of primaryFeatureCount
// features whose global columns are 0..primaryFeatureCount-1. columns holds
// the harmonized column of every reference feature, as produced by
// feature.Index.HarmonizeSecondary; only features whose column is below
// primaryFeatureCount are shared.
func (s *Session) BuildHarmonized(ctx context.Context, primaryFeatureCount int, columns []int32, ref *LoadedReference, top int) (*BuiltReference, error) {
	const call = "BuildHarmonized"
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidArgument)
	}
	if len(columns) != ref.features {
		return nil, mismatch(call, "columns", ref.features, len(columns))
	}
	if top <= 0 {
		return nil, fmt.Errorf("%w: top must be positive, got %d", ErrInvalidArgument, top)
	}
	if primaryFeatureCount < 0 {
		return nil, fmt.Errorf("%w: negative primary feature count %d", ErrInvalidArgument, primaryFeatureCount)
	}
	if _, err := conv.IntToInt32(primaryFeatureCount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	primary := make([]int32, primaryFeatureCount)
	for i := range primary {
		primary[i] = int32(i) //nolint:gosec // bounded by the check above
	}
	return s.build(ctx, call, primary, columns, ref, top)
}

func (s *Session) build(ctx context.Context, call string, primary, columns []int32, ref *LoadedReference, top int) (built *BuiltReference, err error) {
	start := time.Now()
	defer func() {
		shared := 0
		if built != nil {
			shared = built.shared
		}
		s.metrics.RecordBuild(shared, time.Since(start), err)
		s.logger.LogOperation(ctx, call, err, "features", len(primary), "shared", shared, "top", top)
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	h, err := ref.handle(s)
	if err != nil {
		return nil, err
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &built, &err)

	ids, err := scope.Wrap(primary)
	if err != nil {
		return nil, translateError(err)
	}
	cols, err := scope.Wrap(columns)
	if err != nil {
		return nil, translateError(err)
	}

	info, err := s.eng.BuildReference(len(primary), ids.Span(), h, cols.Span(), top)
	if err != nil {
		return nil, translateError(err)
	}
	return &BuiltReference{
		object:   object{s: s, kind: "built reference", h: info.Handle},
		expected: len(primary),
		shared:   info.SharedFeatures,
	}, nil
}
