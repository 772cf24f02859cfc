package native

import (
	"fmt"
	"sync"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/resource"
)

var _ engine.Engine = (*Engine)(nil)

// Engine is an in-process engine.Engine. It reads and writes foreign buffers
// through a buffer.Memory and keeps every object it creates in Go memory, so
// objects never depend on the buffers they were built from.
//
// Engine is safe for concurrent use. Objects are immutable once created.
type Engine struct {
	mem     buffer.Memory
	rc      *resource.Controller
	workers int

	mu      sync.RWMutex
	objects map[engine.Handle]any
	next    engine.Handle
	closed  bool
}

// Option is a configuration option for Engine.
type Option func(*Engine)

// WithWorkers sets how many goroutines one scoring call may use.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithResourceController shares the controller's worker slots with other
// engine calls and sizes the per-call parallelism from it.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
		if rc != nil {
			e.workers = rc.Workers()
		}
	}
}

// New creates an Engine that resolves spans through mem.
func New(mem buffer.Memory, optFns ...Option) *Engine {
	e := &Engine{
		mem:     mem,
		workers: 1,
		objects: make(map[engine.Handle]any),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(e)
		}
	}
	return e
}

// Len returns the number of live engine objects.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.objects)
}

// Free releases the object behind h.
func (e *Engine) Free(h engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return engine.ErrClosed
	}
	if _, ok := e.objects[h]; !ok {
		return fmt.Errorf("%w: %d", engine.ErrInvalidHandle, h)
	}
	delete(e.objects, h)
	return nil
}

// Close releases every object. Handles are invalid afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	clear(e.objects)
	return nil
}

func (e *Engine) put(obj any) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, engine.ErrClosed
	}
	e.next++
	e.objects[e.next] = obj
	return e.next, nil
}

func lookup[T any](e *Engine, h engine.Handle) (T, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var zero T
	if e.closed {
		return zero, engine.ErrClosed
	}
	obj, ok := e.objects[h]
	if !ok {
		return zero, fmt.Errorf("%w: %d", engine.ErrInvalidHandle, h)
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %d is a %T", engine.ErrInvalidHandle, h, obj)
	}
	return v, nil
}

func (e *Engine) bytes(s buffer.Span, t buffer.ElementType, want int, name string) ([]byte, error) {
	if s.Type != t {
		return nil, fmt.Errorf("%w: %s must be %s, got %s", engine.ErrInvalidArgument, name, t, s.Type)
	}
	if want >= 0 && s.Len != want {
		return nil, fmt.Errorf("%w: %s has %d elements, want %d", engine.ErrDimensionMismatch, name, s.Len, want)
	}
	data, err := e.mem.Bytes(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrInvalidHandle, name, err)
	}
	return data, nil
}

func (e *Engine) int32s(s buffer.Span, want int, name string) ([]int32, error) {
	data, err := e.bytes(s, buffer.Int32, want, name)
	if err != nil {
		return nil, err
	}
	return buffer.AsInt32s(data), nil
}

func (e *Engine) float64s(s buffer.Span, want int, name string) ([]float64, error) {
	data, err := e.bytes(s, buffer.Float64, want, name)
	if err != nil {
		return nil, err
	}
	return buffer.AsFloat64s(data), nil
}

func (e *Engine) handles(s buffer.Span, name string) ([]engine.Handle, error) {
	if s.Type != buffer.Uint64 {
		return nil, fmt.Errorf("%w: %s must be %s, got %s", engine.ErrInvalidArgument, name, buffer.Uint64, s.Type)
	}
	return engine.ReadHandles(e.mem, s)
}
