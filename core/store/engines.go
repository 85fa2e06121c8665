package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"querypanel/config"
	"querypanel/core/engine"
	"querypanel/core/utils"
)

// Engines holds the process-wide engines opened from config, by name.
type Engines struct {
	order  []string
	byName map[string]*engine.Engine
}

func OpenEngines(cfgs []config.EngineConfig, logger *utils.Logger) (*Engines, error) {
	out := &Engines{byName: map[string]*engine.Engine{}}
	for _, c := range cfgs {
		if _, dup := out.byName[c.Name]; dup {
			_ = out.Close()
			return nil, fmt.Errorf("engine %s declared twice", c.Name)
		}
		if err := ensureSQLiteDir(c); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("engine %s: %w", c.Name, err)
		}
		e, err := engine.Open(engine.Config{
			Name:            c.Name,
			Driver:          c.Driver,
			DSN:             c.DSN,
			MaxOpenConns:    c.MaxOpenConns,
			MaxIdleConns:    c.MaxIdleConns,
			ConnMaxLifetime: c.ConnMaxLifetime,
		}, engine.WithLogger(logger))
		if err != nil {
			if logger != nil {
				logger.Errorf("engine %s open failed: %v", c.Name, err)
			}
			_ = out.Close()
			return nil, fmt.Errorf("engine %s: %w", c.Name, err)
		}
		out.Add(e)
	}
	return out, nil
}

// ensureSQLiteDir creates the parent directory of a file-backed sqlite DSN.
func ensureSQLiteDir(c config.EngineConfig) error {
	if engine.NormalizeDriver(c.Driver) != "sqlite" {
		return nil
	}
	path := strings.TrimPrefix(c.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// NewEngines wraps already opened engines.
func NewEngines(es ...*engine.Engine) *Engines {
	out := &Engines{byName: map[string]*engine.Engine{}}
	for _, e := range es {
		out.Add(e)
	}
	return out
}

func (s *Engines) Add(e *engine.Engine) {
	if e == nil {
		return
	}
	if _, ok := s.byName[e.Name()]; !ok {
		s.order = append(s.order, e.Name())
	}
	s.byName[e.Name()] = e
}

func (s *Engines) Get(name string) (*engine.Engine, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.byName[name]
	return e, ok
}

// All returns the engines in the order they were opened.
func (s *Engines) All() []*engine.Engine {
	if s == nil {
		return nil
	}
	out := make([]*engine.Engine, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Names returns the engine names sorted.
func (s *Engines) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	sort.Strings(out)
	return out
}

func (s *Engines) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, e := range s.All() {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine %s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
