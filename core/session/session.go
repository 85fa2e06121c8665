// Package session provides the request-scoped handles handlers use to run
// statements against one or more engines.
//
// Three variants exist: Session (one bind, a pinned connection, or one bind
// per entity), Sharded (one Session per shard) and Async (runs work on a
// Session from background goroutines). All of them report the engines they
// can reach through ResolveEngines.
package session

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync/atomic"

	"querypanel/core/engine"
)

var (
	ErrUnbound      = errors.New("session is not bound to an engine")
	ErrClosed       = errors.New("session is closed")
	ErrUnknownShard = errors.New("unknown shard")
)

// Executor is satisfied by *sql.DB and *sql.Conn.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Session struct {
	bind   *engine.Engine
	conn   *engine.Conn
	binds  map[string]*engine.Engine
	closed atomic.Bool
}

func New(e *engine.Engine) *Session {
	return &Session{bind: e}
}

// NewOnConn binds the session to a pinned connection. The caller keeps
// ownership of the connection.
func NewOnConn(c *engine.Conn) *Session {
	return &Session{conn: c}
}

// NewMulti binds entities (usually table names) to their own engines.
// Entities without a bind fall back to def, which may be nil.
func NewMulti(binds map[string]*engine.Engine, def *engine.Engine) *Session {
	cp := make(map[string]*engine.Engine, len(binds))
	for k, v := range binds {
		if v != nil {
			cp[k] = v
		}
	}
	return &Session{bind: def, binds: cp}
}

// GetBind returns the session's effective engine.
func (s *Session) GetBind() (*engine.Engine, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.conn != nil {
		return s.conn.Engine(), nil
	}
	if s.bind != nil {
		return s.bind, nil
	}
	return nil, ErrUnbound
}

func (s *Session) BindFor(entity string) (*engine.Engine, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if e, ok := s.binds[entity]; ok {
		return e, nil
	}
	return s.GetBind()
}

// ResolveEngines returns every per-entity bind when the session has any,
// otherwise its single effective engine.
func (s *Session) ResolveEngines() ([]*engine.Engine, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(s.binds) > 0 {
		keys := make([]string, 0, len(s.binds))
		for k := range s.binds {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]*engine.Engine, 0, len(keys))
		for _, k := range keys {
			out = append(out, s.binds[k])
		}
		return out, nil
	}
	e, err := s.GetBind()
	if err != nil {
		return nil, err
	}
	return []*engine.Engine{e}, nil
}

func (s *Session) executor() (Executor, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.conn != nil {
		return s.conn.Conn, nil
	}
	if s.bind != nil {
		return s.bind.DB(), nil
	}
	return nil, ErrUnbound
}

// For returns the executor for entity.
func (s *Session) For(entity string) (Executor, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if e, ok := s.binds[entity]; ok {
		return e.DB(), nil
	}
	return s.executor()
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	return ex.ExecContext(ctx, query, args...)
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	return ex.QueryContext(ctx, query, args...)
}

// QueryRowContext returns ErrUnbound or ErrClosed through the returned error
// instead of a *sql.Row so callers can tell them apart from sql.ErrNoRows.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	return ex.QueryRowContext(ctx, query, args...), nil
}

func (s *Session) Closed() bool { return s.closed.Load() }

// Close marks the session unusable. Engines and pinned connections are not
// closed; they outlive the session.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}
