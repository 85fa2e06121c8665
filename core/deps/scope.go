package deps

import (
	"errors"
	"sync"
)

// Scope collects cleanup functions for resources opened while resolving a
// request and releases them in reverse order.
type Scope struct {
	mu     sync.Mutex
	fns    []func() error
	closed bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Defer registers fn to run on Close. After Close it runs immediately.
func (s *Scope) Defer(fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = fn()
		return
	}
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *Scope) Close() error {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
