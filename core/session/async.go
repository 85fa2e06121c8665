package session

import (
	"context"
	"fmt"
	"sync"

	"querypanel/core/engine"
)

// Async runs work against a Session on background goroutines. The wrapped
// Session is what actually talks to the engines.
type Async struct {
	sync *Session
	wg   sync.WaitGroup
}

func NewAsync(s *Session) *Async {
	return &Async{sync: s}
}

func (a *Async) SyncSession() *Session { return a.sync }

// Go runs fn in a goroutine. The returned channel yields fn's error and is
// then closed.
func (a *Async) Go(ctx context.Context, fn func(ctx context.Context, s *Session) error) <-chan error {
	out := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- fmt.Errorf("async session: panic: %v", r)
			}
		}()
		if a.sync == nil {
			out <- ErrUnbound
			return
		}
		out <- fn(ctx, a.sync)
	}()
	return out
}

func (a *Async) Wait() { a.wg.Wait() }

func (a *Async) ResolveEngines() ([]*engine.Engine, error) {
	if a.sync == nil {
		return nil, ErrUnbound
	}
	return a.sync.ResolveEngines()
}

// Close waits for in-flight work and closes the wrapped session.
func (a *Async) Close() error {
	a.wg.Wait()
	if a.sync == nil {
		return nil
	}
	return a.sync.Close()
}
