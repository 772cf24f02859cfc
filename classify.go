package labelkit

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/labelkit/buffer"
)

// ClassifyCells assigns every cell of in the best label of ref. The result
// has one label index per cell. With WithOutputBuffer it is a view over the
// caller's buffer; otherwise it is freshly allocated host memory.
func (s *Session) ClassifyCells(ctx context.Context, in Input, ref *BuiltReference, optFns ...ClassifyOption) (labels []int32, err error) {
	const call = "ClassifyCells"

	start := time.Now()
	cells := 0
	defer func() {
		s.metrics.RecordClassify(cells, time.Since(start), err)
		s.logger.LogOperation(ctx, call, err, "cells", cells)
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	opts, err := applyClassifyOptions(optFns)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidArgument)
	}
	built, err := ref.handle(s)
	if err != nil {
		return nil, err
	}

	rows, cols, err := in.shape(s, call)
	if err != nil {
		return nil, err
	}
	if rows != ref.expected {
		return nil, mismatch(call, "reference", ref.expected, rows)
	}
	if err := checkOutput(call, opts.out, cols); err != nil {
		return nil, err
	}
	cells = cols

	scope := s.reg.NewScope()
	defer closeScope(scope, &err)

	mat, err := in.materialize(s, scope)
	if err != nil {
		return nil, err
	}

	out, err := s.output(scope, opts.out, cols)
	if err != nil {
		return nil, err
	}

	if err := s.eng.Classify(mat, built, opts.quantile, out.Span()); err != nil {
		return nil, translateError(err)
	}
	return collect(out, opts.out != nil), nil
}

// output returns the caller's buffer or a temporary one owned by scope.
func (s *Session) output(scope *buffer.Scope, caller *buffer.Buffer, n int) (*buffer.Buffer, error) {
	if caller != nil {
		return caller, nil
	}
	out, err := scope.Acquire(buffer.Int32, n)
	if err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

// collect returns a view over a caller buffer or a host copy of a temporary one.
func collect(out *buffer.Buffer, view bool) []int32 {
	if view {
		return out.Int32s()
	}
	return append(make([]int32, 0, out.Len()), out.Int32s()...)
}
