// Package sqlpanel is the toolbar panel that records the SQL a request runs.
//
// Before the handler runs, the panel resolves the request's dependencies a
// second time to learn which engines the handler can reach, hooks those
// engines, and removes the hooks again once the handler returns or panics.
package sqlpanel

import (
	"net/http"
	"sync"

	"querypanel/core/engine"
	"querypanel/core/querylog"
	"querypanel/core/toolbar"
	"querypanel/core/utils"
)

const PanelID = "SQLPanel"

type State int

const (
	Idle State = iota
	Discovering
	Instrumented
	Delegating
	CleaningUp
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Instrumented:
		return "instrumented"
	case Delegating:
		return "delegating"
	case CleaningUp:
		return "cleaning_up"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Panel handles exactly one request.
type Panel struct {
	log      *querylog.Log
	resolver DependencyResolver
	logger   *utils.Logger
	hook     *Hook

	mu        sync.Mutex
	state     State
	engines   []*engine.Engine
	counts    map[*engine.Engine]int
	discovery Discovery
}

func New(resolver DependencyResolver, logger *utils.Logger) *Panel {
	p := &Panel{
		log:      querylog.NewLog(),
		resolver: resolver,
		logger:   logger,
		counts:   map[*engine.Engine]int{},
	}
	p.hook = NewHook(p)
	return p
}

// Factory builds a fresh Panel for every request.
func Factory(resolver DependencyResolver, logger *utils.Logger) toolbar.Factory {
	return func() toolbar.Panel {
		return New(resolver, logger)
	}
}

func (p *Panel) ID() string    { return PanelID }
func (p *Panel) Title() string { return "SQL" }

func (p *Panel) AddQuery(key string, rec querylog.Record) {
	p.log.AddQuery(key, rec)
}

func (p *Panel) Log() *querylog.Log { return p.log }

func (p *Panel) Hook() *Hook { return p.hook }

// Register installs the panel's hook on e. Each call must be paired with an
// Unregister.
func (p *Panel) Register(e *engine.Engine) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[e] == 0 {
		p.engines = append(p.engines, e)
	}
	p.counts[e]++
	p.hook.Install(e)
}

// Unregister removes one registration made by Register. It is a no-op for an
// engine the panel has not registered.
func (p *Panel) Unregister(e *engine.Engine) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.counts[e]
	if n == 0 {
		return
	}
	if n == 1 {
		delete(p.counts, e)
		for i, have := range p.engines {
			if have == e {
				p.engines = append(p.engines[:i:i], p.engines[i+1:]...)
				break
			}
		}
	} else {
		p.counts[e] = n - 1
	}
	if !p.hook.Uninstall(e) {
		p.logger.Debugf("sqlpanel: hook %s already gone from %s", p.hook.ID(), e)
	}
}

// WithContext returns r with a context whose statements are recorded by p.
func (p *Panel) WithContext(r *http.Request) *http.Request {
	return r.WithContext(p.hook.Context(r.Context()))
}

func (p *Panel) ProcessRequest(w http.ResponseWriter, r *http.Request, next http.Handler) {
	p.setState(Discovering)
	d := DiscoverEngines(r, p.resolver, p.logger)
	p.mu.Lock()
	p.discovery = d
	p.mu.Unlock()

	defer p.cleanup()
	for _, e := range d.Engines {
		p.Register(e)
	}
	p.setState(Instrumented)

	p.setState(Delegating)
	next.ServeHTTP(w, p.WithContext(r))
}

func (p *Panel) cleanup() {
	p.setState(CleaningUp)
	p.mu.Lock()
	pending := make(map[*engine.Engine]int, len(p.counts))
	order := make([]*engine.Engine, len(p.engines))
	copy(order, p.engines)
	for e, n := range p.counts {
		pending[e] = n
	}
	p.mu.Unlock()

	for _, e := range order {
		for i := 0; i < pending[e]; i++ {
			p.unregisterSafe(e)
		}
	}
	p.setState(Done)
}

func (p *Panel) unregisterSafe(e *engine.Engine) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Errorf("sqlpanel: unregister %s: %v", e, rec)
		}
	}()
	p.Unregister(e)
}

func (p *Panel) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Engines returns the engines currently registered by the panel.
func (p *Panel) Engines() []*engine.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*engine.Engine, len(p.engines))
	copy(out, p.engines)
	return out
}

func (p *Panel) Discovery() Discovery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovery
}

type EngineQueries struct {
	URL     string            `json:"url"`
	Queries []querylog.Record `json:"queries"`
}

type Stats struct {
	State      string          `json:"state"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	Discovered []string        `json:"discovered"`
	Summary    querylog.Stats  `json:"summary"`
	Engines    []EngineQueries `json:"engines"`
}

func (p *Panel) Stats() any {
	d := p.Discovery()
	st := Stats{
		State:      p.State().String(),
		Outcome:    d.Outcome.String(),
		Discovered: make([]string, 0, len(d.Engines)),
		Summary:    p.log.Stats(),
	}
	if d.Err != nil {
		st.Error = d.Err.Error()
	}
	for _, e := range d.Engines {
		st.Discovered = append(st.Discovered, e.URL())
	}
	for _, key := range p.log.Keys() {
		st.Engines = append(st.Engines, EngineQueries{URL: key, Queries: p.log.Queries(key)})
	}
	return st
}
