// Package deps declares what a handler needs and resolves those needs per
// request. A route registers a Dependant; Solve runs its providers in
// declaration order and hands the resulting Values to the handler.
package deps

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a client-facing failure raised by a provider or handler.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
}

func Errorf(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err carries a 4xx HTTPError.
func IsClientError(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.Status >= 400 && he.Status < 500
}

type Values map[string]any

// Get returns the value resolved under name if it has type T.
func Get[T any](v Values, name string) (T, bool) {
	raw, ok := v[name]
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := raw.(T)
	return out, ok
}

// Call is what a provider receives: the request, the scope that owns any
// resources it opens, and the values resolved before it.
type Call struct {
	Request *http.Request
	Scope   *Scope
	Values  Values
}

type Provider func(c *Call) (any, error)

type Dependency struct {
	Name    string
	Provide Provider
}

func Depends(name string, p Provider) Dependency {
	return Dependency{Name: name, Provide: p}
}

type Dependant struct {
	Dependencies []Dependency
}

func NewDependant(ds ...Dependency) *Dependant {
	return &Dependant{Dependencies: ds}
}

// Overrides replaces providers by dependency name.
type Overrides map[string]Provider

// Solve resolves d against r. On failure it returns the values resolved so
// far together with the error.
func Solve(r *http.Request, d *Dependant, scope *Scope, overrides Overrides) (Values, error) {
	vals := Values{}
	if d == nil {
		return vals, nil
	}
	for _, dep := range d.Dependencies {
		p := dep.Provide
		if o, ok := overrides[dep.Name]; ok && o != nil {
			p = o
		}
		if p == nil {
			return vals, fmt.Errorf("dependency %q has no provider", dep.Name)
		}
		v, err := p(&Call{Request: r, Scope: scope, Values: vals})
		if err != nil {
			return vals, err
		}
		vals[dep.Name] = v
	}
	return vals, nil
}
