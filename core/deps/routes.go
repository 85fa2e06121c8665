package deps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"querypanel/core/utils"

	"github.com/go-chi/chi/v5"
)

type Route struct {
	Method    string
	Pattern   string
	Dependant *Dependant
}

type Handler func(w http.ResponseWriter, r *http.Request, vals Values)

// Routes registers dependency-aware handlers on a chi mux and remembers each
// route's Dependant so it can be found again from a request before dispatch.
type Routes struct {
	mux    *chi.Mux
	logger *utils.Logger

	mu        sync.RWMutex
	routes    map[string]*Route
	overrides Overrides
}

func NewRoutes(mux *chi.Mux, logger *utils.Logger) *Routes {
	return &Routes{
		mux:       mux,
		logger:    logger,
		routes:    map[string]*Route{},
		overrides: Overrides{},
	}
}

func routeKey(method, pattern string) string {
	if pattern != "/" {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return strings.ToUpper(method) + " " + pattern
}

func (rt *Routes) Handle(method, pattern string, d *Dependant, h Handler) {
	method = strings.ToUpper(method)
	rt.mu.Lock()
	rt.routes[routeKey(method, pattern)] = &Route{Method: method, Pattern: pattern, Dependant: d}
	rt.mu.Unlock()
	rt.mux.Method(method, pattern, rt.endpoint(d, h))
}

func (rt *Routes) Get(pattern string, d *Dependant, h Handler) {
	rt.Handle(http.MethodGet, pattern, d, h)
}

func (rt *Routes) Post(pattern string, d *Dependant, h Handler) {
	rt.Handle(http.MethodPost, pattern, d, h)
}

// Override swaps the provider of the named dependency for every route until
// the returned restore func is called.
func (rt *Routes) Override(name string, p Provider) (restore func()) {
	rt.mu.Lock()
	prev, had := rt.overrides[name]
	rt.overrides[name] = p
	rt.mu.Unlock()
	return func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if had {
			rt.overrides[name] = prev
			return
		}
		delete(rt.overrides, name)
	}
}

func (rt *Routes) snapshotOverrides() Overrides {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make(Overrides, len(rt.overrides))
	for k, v := range rt.overrides {
		out[k] = v
	}
	return out
}

// Lookup matches r against the mux without dispatching it.
func (rt *Routes) Lookup(r *http.Request) (*Route, bool) {
	route, _, ok := rt.match(r)
	return route, ok
}

func (rt *Routes) match(r *http.Request) (*Route, *chi.Context, bool) {
	rctx := chi.NewRouteContext()
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	if !rt.mux.Match(rctx, r.Method, path) {
		return nil, nil, false
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	route, ok := rt.routes[routeKey(r.Method, rctx.RoutePattern())]
	return route, rctx, ok
}

func (rt *Routes) Solve(r *http.Request, d *Dependant, scope *Scope) (Values, error) {
	return Solve(r, d, scope, rt.snapshotOverrides())
}

// ResolveRequest re-solves the dependencies of the route r matches, with the
// route's URL parameters visible to providers. ok is false when no
// dependency-aware route matches.
//
// The body of r is buffered and r.Body replaced, so providers that read it
// here leave it intact for the real handler.
func (rt *Routes) ResolveRequest(r *http.Request, scope *Scope) (Values, bool, error) {
	route, rctx, ok := rt.match(r)
	if !ok || route.Dependant == nil {
		return nil, false, nil
	}
	spec := r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	if r.Body != nil && r.Body != http.NoBody {
		buf, err := io.ReadAll(io.LimitReader(r.Body, maxBufferedBody+1))
		if err != nil {
			return nil, true, fmt.Errorf("buffer request body: %w", err)
		}
		if len(buf) > maxBufferedBody {
			r.Body = readCloser{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
		} else {
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(buf))
		}
		spec.Body = io.NopCloser(bytes.NewReader(buf))
	}
	vals, err := rt.Solve(spec, route.Dependant, scope)
	return vals, true, err
}

const maxBufferedBody = 1 << 20

type readCloser struct {
	io.Reader
	io.Closer
}

func (rt *Routes) endpoint(d *Dependant, h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := NewScope()
		defer func() {
			if err := scope.Close(); err != nil && rt.logger != nil {
				rt.logger.Errorf("deps scope close %s %s: %v", r.Method, r.URL.Path, err)
			}
		}()
		vals, err := rt.Solve(r, d, scope)
		if err != nil {
			rt.WriteError(w, r, err)
			return
		}
		h(w, r, vals)
	}
}

// WriteError renders err as a JSON detail body. Errors that are not
// HTTPErrors become 500s.
func (rt *Routes) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var he *HTTPError
	if !errors.As(err, &he) {
		if rt.logger != nil {
			rt.logger.Errorf("handler error %s %s: %v", r.Method, r.URL.Path, err)
		}
		he = &HTTPError{Status: http.StatusInternalServerError, Detail: "internal error"}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{"detail": he.Detail})
}
