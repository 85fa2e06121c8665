package sqlpanel

import (
	"fmt"
	"net/http"
	"sort"

	"querypanel/core/deps"
	"querypanel/core/engine"
	"querypanel/core/utils"
)

// EngineSource is implemented by every session flavour that can be handed to
// a handler: session.Session, session.Sharded and session.Async.
type EngineSource interface {
	ResolveEngines() ([]*engine.Engine, error)
}

// DependencyResolver finds the route r is headed for and resolves its
// dependencies without running the handler. ok is false when r matches no
// dependency-aware route. deps.Routes implements it.
type DependencyResolver interface {
	ResolveRequest(r *http.Request, scope *deps.Scope) (vals deps.Values, ok bool, err error)
}

type Outcome int

const (
	// Complete means every dependency resolved and was inspected.
	Complete Outcome = iota
	// NoRoute means the request has no dependency graph to inspect.
	NoRoute
	// Partial means resolution or inspection failed part way. The engines
	// found before the failure are still reported.
	Partial
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case NoRoute:
		return "no_route"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Discovery struct {
	Engines []*engine.Engine
	Outcome Outcome
	// Err is the resolution error, if any. It is never returned to the
	// caller of the request.
	Err error
	// Failed names the dependency values whose inspection failed.
	Failed []string
}

func (d *Discovery) add(es ...*engine.Engine) {
	for _, e := range es {
		if e == nil {
			continue
		}
		dup := false
		for _, have := range d.Engines {
			if have == e {
				dup = true
				break
			}
		}
		if !dup {
			d.Engines = append(d.Engines, e)
		}
	}
}

// DiscoverEngines resolves the dependencies of the route r matches and
// collects the distinct engines reachable from the resolved sessions.
// Nothing that goes wrong here is returned as an error: failures are
// recorded in the Discovery and the request carries on.
func DiscoverEngines(r *http.Request, resolver DependencyResolver, logger *utils.Logger) Discovery {
	d := Discovery{Outcome: Complete}
	if resolver == nil {
		d.Outcome = NoRoute
		return d
	}
	scope := deps.NewScope()
	defer func() {
		if err := scope.Close(); err != nil {
			logger.Errorf("sqlpanel: close discovery scope %s %s: %v", r.Method, r.URL.Path, err)
		}
	}()

	vals, ok, err := resolve(r, resolver, scope)
	if err != nil {
		d.Outcome = Partial
		d.Err = err
		if deps.IsClientError(err) {
			logger.Debugf("sqlpanel: speculative resolution %s %s: %v", r.Method, r.URL.Path, err)
		} else {
			logger.Errorf("sqlpanel: speculative resolution %s %s: %v", r.Method, r.URL.Path, err)
		}
	} else if !ok {
		d.Outcome = NoRoute
		return d
	}

	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		es, err := inspect(vals[name])
		if err != nil {
			logger.Errorf("sqlpanel: inspect dependency %q: %v", name, err)
			d.Failed = append(d.Failed, name)
			d.Outcome = Partial
			continue
		}
		d.add(es...)
	}
	return d
}

func resolve(r *http.Request, resolver DependencyResolver, scope *deps.Scope) (vals deps.Values, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return resolver.ResolveRequest(r, scope)
}

func inspect(v any) (es []*engine.Engine, err error) {
	src, ok := v.(EngineSource)
	if !ok || src == nil {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			es, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	return src.ResolveEngines()
}
