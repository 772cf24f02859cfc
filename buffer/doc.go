// Package buffer manages typed buffers on the foreign heap shared with the
// classification engine.
//
// A Registry allocates buffers with stable addresses outside the Go heap and
// tracks every live one. Engines receive buffers as Spans (address, length,
// element type) and never own them.
//
// A Scope ties buffer lifetimes to a single call: everything acquired through
// the scope, plus any deferred engine cleanup, is released exactly once when
// the scope closes, whether the call succeeds, fails, or panics past a
// deferred Close.
//
//	reg := buffer.NewRegistry()
//	scope := reg.NewScope()
//	defer scope.Close()
//
//	ids, err := scope.Wrap([]uint64{10, 20, 30})
//	if err != nil {
//		return err
//	}
//	_ = ids.Span()
package buffer
