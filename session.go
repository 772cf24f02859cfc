package labelkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/codec"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/engine/native"
	"github.com/hupe1980/labelkit/resource"
)

// Session binds a buffer registry to a compute engine. Every operation opens
// one buffer scope and closes it before returning, so foreign buffers created
// for a call never outlive it.
//
// A Session is safe for concurrent use as long as the engine is.
type Session struct {
	reg          *buffer.Registry
	ownsRegistry bool
	eng          engine.Engine
	rc           *resource.Controller
	codec        codec.Codec
	logger       *Logger
	metrics      MetricsCollector
	strict       bool
	closed       atomic.Bool
}

// New creates a Session. Without WithEngine it runs the in-process engine
// over its own registry, both limited by the resource configuration.
func New(optFns ...Option) *Session {
	opts := applyOptions(optFns)

	rc := resource.NewController(opts.resources)

	s := &Session{
		reg:     opts.registry,
		eng:     opts.engine,
		rc:      rc,
		codec:   opts.codec,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
		strict:  opts.strict,
	}

	if s.reg == nil {
		s.reg = buffer.NewRegistry(
			buffer.WithDebug(opts.debug),
			buffer.WithMemoryAcquirer(rc),
		)
		s.ownsRegistry = true
	}

	if s.eng == nil {
		s.eng = native.New(s.reg, native.WithResourceController(rc))
	}

	return s
}

// Registry returns the session's buffer registry. Buffers acquired from it
// can be passed as dense inputs and output buffers.
func (s *Session) Registry() *buffer.Registry {
	return s.reg
}

// Engine returns the session's compute engine.
func (s *Session) Engine() engine.Engine {
	return s.eng
}

// Close closes the engine, which frees every engine object, and then the
// registry if the session created it. Buffers still live at that point are
// logged and released.
func (s *Session) Close() error {
	if s == nil || s.closed.Swap(true) {
		return nil
	}

	err := translateError(s.eng.Close())

	if s.ownsRegistry {
		leaked, cerr := s.reg.Close()
		s.logger.LogLeaks(context.Background(), leaked)
		err = errors.Join(err, cerr)
	}
	return err
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// begin checks the session and the context before an operation.
func (s *Session) begin(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return ctx.Err()
}

// closeScope closes scope and folds its error into *err.
func closeScope(scope *buffer.Scope, err *error) {
	if cerr := scope.Close(); cerr != nil {
		*err = errors.Join(*err, translateError(cerr))
	}
}

// closeScopeOwning is closeScope for calls that create an engine object. If
// the scope fails to close, *out is freed and cleared so that a call never
// returns both a result and an error.
func closeScopeOwning[T any, P interface {
	*T
	free() error
}](scope *buffer.Scope, out *P, err *error) {
	cerr := scope.Close()
	if cerr == nil {
		return
	}
	*err = errors.Join(*err, translateError(cerr))
	if *out != nil {
		*err = errors.Join(*err, (*out).free())
		*out = nil
	}
}

// object is the shared part of every engine-backed result type.
type object struct {
	s    *Session
	kind string

	mu    sync.Mutex
	h     engine.Handle
	freed bool
}

func (o *object) handle(s *Session) (engine.Handle, error) {
	if o == nil {
		return 0, fmt.Errorf("%w: nil handle", ErrInvalidArgument)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.freed {
		return 0, fmt.Errorf("%w: %s was freed", ErrInvalidHandle, o.kind)
	}
	if o.s != s {
		return 0, fmt.Errorf("%w: %s belongs to another session", ErrInvalidHandle, o.kind)
	}
	return o.h, nil
}

// free releases the engine object at most once. Objects of a closed session
// were already released by the engine.
func (o *object) free() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.freed {
		return nil
	}
	o.freed = true
	if o.s.closed.Load() {
		return nil
	}
	return translateError(o.s.eng.Free(o.h))
}

// Freed reports whether Free has been called.
func (o *object) Freed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.freed
}
