package buffer

import (
	"errors"
	"fmt"
)

type scopeEntry struct {
	buf *Buffer
	fn  func() error
}

// Scope owns a set of buffers and cleanup functions and releases all of them
// exactly once when closed. Close runs in reverse registration order.
//
// A Scope is meant to live for the duration of a single call:
//
//	scope := reg.NewScope()
//	defer scope.Close()
//
// Buffers that must outlive the call are handed over with Detach. A Scope is
// not safe for concurrent use.
type Scope struct {
	reg     *Registry
	entries []scopeEntry
	owned   map[*Buffer]int
	closed  bool
}

// NewScope returns an empty scope bound to r.
func (r *Registry) NewScope() *Scope {
	return &Scope{
		reg:   r,
		owned: make(map[*Buffer]int),
	}
}

// Registry returns the registry the scope allocates from.
func (s *Scope) Registry() *Registry { return s.reg }

// Acquire allocates a buffer owned by the scope.
func (s *Scope) Acquire(t ElementType, n int) (*Buffer, error) {
	if s.closed {
		return nil, ErrScopeClosed
	}
	b, err := s.reg.Acquire(t, n)
	if err != nil {
		return nil, err
	}
	s.push(b)
	return b, nil
}

// Wrap makes host data visible on the foreign heap. If Wrap had to copy, the
// copy is owned by the scope; views are never released.
func (s *Scope) Wrap(host any) (*Buffer, error) {
	if s.closed {
		return nil, ErrScopeClosed
	}
	b, err := s.reg.Wrap(host)
	if err != nil {
		return nil, err
	}
	if !b.IsView() {
		s.push(b)
	}
	return b, nil
}

// Track hands ownership of an existing buffer to the scope. A buffer can be
// tracked once; views and released buffers are rejected.
func (s *Scope) Track(b *Buffer) error {
	if s.closed {
		return ErrScopeClosed
	}
	if b == nil || b.reg != s.reg || b.IsView() || b.Released() {
		return fmt.Errorf("%w: cannot track %v", ErrInvalidHandle, b)
	}
	if _, ok := s.owned[b]; ok {
		return fmt.Errorf("%w: %s already tracked", ErrInvalidHandle, b)
	}
	s.push(b)
	return nil
}

// Defer registers fn to run when the scope closes. Engine handles are
// released this way.
func (s *Scope) Defer(fn func() error) {
	if fn == nil {
		return
	}
	if s.closed {
		// Closed scopes run fn immediately.
		_ = fn()
		return
	}
	s.entries = append(s.entries, scopeEntry{fn: fn})
}

// Detach removes b from the scope without releasing it. The caller becomes
// responsible for releasing b. Detach reports whether b was owned.
func (s *Scope) Detach(b *Buffer) bool {
	i, ok := s.owned[b]
	if !ok {
		return false
	}
	delete(s.owned, b)
	s.entries[i].buf = nil
	return true
}

// Len returns the number of buffers currently owned by the scope.
func (s *Scope) Len() int { return len(s.owned) }

// Close releases every owned buffer and runs every deferred function. All
// errors are joined. Close is idempotent.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		switch {
		case e.buf != nil:
			if err := s.reg.Release(e.buf); err != nil {
				errs = append(errs, err)
			}
		case e.fn != nil:
			if err := e.fn(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.entries = nil
	clear(s.owned)
	return errors.Join(errs...)
}

func (s *Scope) push(b *Buffer) {
	s.owned[b] = len(s.entries)
	s.entries = append(s.entries, scopeEntry{buf: b})
}
