// Package engine owns long-lived database pools and the statement event
// stream listeners can attach to.
//
// An Engine wraps a *sql.DB opened through an instrumenting connector. Every
// statement executed through the pool is bracketed by BeforeExecute and
// AfterExecute notifications delivered to the listeners registered at the
// moment the statement starts.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"querypanel/core/utils"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	// ErrExecutionPanicked is set on an Execution whose driver call panicked.
	ErrExecutionPanicked = errors.New("statement execution panicked")
)

type Kind string

const (
	KindExec  Kind = "exec"
	KindQuery Kind = "query"
)

// Execution is the per-statement context handed to listeners. The same value
// is passed to BeforeExecute and AfterExecute of one statement.
type Execution struct {
	ID         uuid.UUID
	Context    context.Context
	Engine     *Engine
	Kind       Kind
	Statement  string
	Parameters any
	Err        error
}

// Skipped reports whether the driver declined the fast path; the statement is
// then re-issued through a prepared statement and observed again.
func (ex *Execution) Skipped() bool {
	return errors.Is(ex.Err, driver.ErrSkip)
}

type Listener interface {
	BeforeExecute(ex *Execution)
	AfterExecute(ex *Execution)
}

type Config struct {
	Name            string
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Option func(*Engine)

func WithLogger(logger *utils.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithURL overrides the reportable URL derived from the DSN.
func WithURL(url string) Option {
	return func(e *Engine) { e.url = url }
}

type registration struct {
	id       uuid.UUID
	listener Listener
	refs     int
}

type Engine struct {
	name   string
	url    string
	driver string
	db     *sql.DB
	logger *utils.Logger

	mu        sync.Mutex
	regs      map[uuid.UUID]*registration
	order     []uuid.UUID
	listeners atomic.Pointer[[]Listener]
}

func Open(cfg Config, opts ...Option) (*Engine, error) {
	driverName := NormalizeDriver(cfg.Driver)
	base, err := baseConnector(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	e := New(cfg.Name, RedactURL(driverName, cfg.DSN), base, opts...)
	e.driver = driverName
	if cfg.MaxOpenConns > 0 {
		e.db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		e.db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		e.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if e.logger != nil {
		e.logger.Printf("engine %s open %s", e.name, e.url)
	}
	return e, nil
}

// New builds an engine on top of an arbitrary connector.
func New(name, url string, base driver.Connector, opts ...Option) *Engine {
	e := &Engine{
		name: name,
		url:  url,
		regs: map[uuid.UUID]*registration{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.db = sql.OpenDB(&connector{base: base, engine: e})
	return e
}

func (e *Engine) Name() string   { return e.name }
func (e *Engine) URL() string    { return e.url }
func (e *Engine) Driver() string { return e.driver }
func (e *Engine) DB() *sql.DB    { return e.db }

func (e *Engine) String() string {
	return fmt.Sprintf("Engine(%s)", e.url)
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Conn pins a single pool connection. The connection keeps a reference to the
// engine it was checked out from.
func (e *Engine) Conn(ctx context.Context) (*Conn, error) {
	c, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c, engine: e}, nil
}

type Conn struct {
	*sql.Conn
	engine *Engine
}

func (c *Conn) Engine() *Engine { return c.engine }

// Listen registers l under id. Registering an id that is already present
// bumps its reference count; the first listener stays in place.
func (e *Engine) Listen(id uuid.UUID, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if reg, ok := e.regs[id]; ok {
		reg.refs++
		return
	}
	e.regs[id] = &registration{id: id, listener: l, refs: 1}
	e.order = append(e.order, id)
	e.publishLocked()
}

// Remove drops one reference of id and reports whether a registration was
// found. Removing an unknown id is a no-op.
func (e *Engine) Remove(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.regs[id]
	if !ok {
		return false
	}
	reg.refs--
	if reg.refs > 0 {
		return true
	}
	delete(e.regs, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
	e.publishLocked()
	return true
}

func (e *Engine) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.regs)
}

func (e *Engine) publishLocked() {
	ls := make([]Listener, 0, len(e.order))
	for _, id := range e.order {
		ls = append(ls, e.regs[id].listener)
	}
	e.listeners.Store(&ls)
}

func (e *Engine) observe(ctx context.Context, kind Kind, query string, args []driver.NamedValue, run func() error) error {
	ls := e.listeners.Load()
	if ls == nil || len(*ls) == 0 {
		return run()
	}
	id, err := uuid.NewV4()
	if err != nil {
		return run()
	}
	ex := &Execution{
		ID:         id,
		Context:    ctx,
		Engine:     e,
		Kind:       kind,
		Statement:  query,
		Parameters: parameters(args),
	}
	for _, l := range *ls {
		e.notify(l.BeforeExecute, ex)
	}
	completed := false
	defer func() {
		if !completed {
			ex.Err = ErrExecutionPanicked
		}
		for _, l := range *ls {
			e.notify(l.AfterExecute, ex)
		}
	}()
	ex.Err = run()
	completed = true
	return ex.Err
}

func (e *Engine) notify(fn func(*Execution), ex *Execution) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Errorf("engine %s: listener panic: %v", e.name, r)
		}
	}()
	fn(ex)
}

func parameters(args []driver.NamedValue) any {
	if len(args) == 0 {
		return nil
	}
	named := false
	for _, a := range args {
		if a.Name != "" {
			named = true
			break
		}
	}
	if !named {
		out := make([]any, 0, len(args))
		for _, a := range args {
			out = append(out, a.Value)
		}
		return out
	}
	out := make(map[string]any, len(args))
	for _, a := range args {
		key := a.Name
		if key == "" {
			key = fmt.Sprintf("p%d", a.Ordinal)
		}
		out[key] = a.Value
	}
	return out
}
