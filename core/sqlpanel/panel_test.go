package sqlpanel

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"querypanel/core/deps"
	"querypanel/core/engine"
	"querypanel/core/session"
	"querypanel/core/utils"

	"github.com/go-chi/chi/v5"
)

func openEngine(t *testing.T, name string, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.Open(engine.Config{
		Name:   name,
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), name+".db"),
	}, opts...)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func sessionOn(e *engine.Engine) deps.Provider {
	return func(c *deps.Call) (any, error) {
		s := session.New(e)
		c.Scope.Defer(s.Close)
		return s, nil
	}
}

func queryInt(t *testing.T, r *http.Request, s *session.Session, query string, args ...any) int64 {
	t.Helper()
	row, err := s.QueryRowContext(r.Context(), query, args...)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	var out int64
	if err := row.Scan(&out); err != nil {
		t.Fatalf("scan %q: %v", query, err)
	}
	return out
}

func serve(p *Panel, next http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	p.ProcessRequest(rr, req, next)
	return rr
}

func TestRequestWithoutSessionsInstallsNothing(t *testing.T) {
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/plain", deps.NewDependant(
		deps.Depends("greeting", func(*deps.Call) (any, error) { return "hi", nil }),
	), func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
		_, _ = w.Write([]byte(vals["greeting"].(string)))
	})

	p := New(rt, utils.NewDiscardLogger())
	rr := serve(p, mux, httptest.NewRequest(http.MethodGet, "/plain", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "hi" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	d := p.Discovery()
	if d.Outcome != Complete || len(d.Engines) != 0 {
		t.Fatalf("unexpected discovery: %+v", d)
	}
	if len(p.Log().Keys()) != 0 || p.State() != Done {
		t.Fatalf("expected empty log and done state, got %v", p.State())
	}
}

func TestSingleEngineRecordsEveryStatement(t *testing.T) {
	e := openEngine(t, "app", engine.WithURL("postgresql://db/app"))
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/q", deps.NewDependant(deps.Depends("db", sessionOn(e))),
		func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
			s, _ := deps.Get[*session.Session](vals, "db")
			if e.ListenerCount() != 1 {
				t.Errorf("expected the hook to be installed during the handler, got %d", e.ListenerCount())
			}
			queryInt(t, r, s, "SELECT 1")
			queryInt(t, r, s, "SELECT ?", int64(2))
			w.WriteHeader(http.StatusNoContent)
		})

	p := New(rt, utils.NewDiscardLogger())
	rr := serve(p, mux, httptest.NewRequest(http.MethodGet, "/q", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rr.Code)
	}

	d := p.Discovery()
	if len(d.Engines) != 1 || d.Engines[0] != e {
		t.Fatalf("expected exactly the app engine, got %v", d.Engines)
	}
	keys := p.Log().Keys()
	if len(keys) != 1 || keys[0] != "postgresql://db/app" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	recs := p.Log().Queries("postgresql://db/app")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Statement != "SELECT 1" || recs[0].Parameters != nil {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Statement != "SELECT ?" || !reflect.DeepEqual(recs[1].Parameters, []any{int64(2)}) {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
	for _, rec := range recs {
		if rec.Duration < 0 {
			t.Fatalf("negative duration: %v", rec.Duration)
		}
	}
	if e.ListenerCount() != 0 || p.hook.Pending() != 0 {
		t.Fatalf("hook must be gone after the request")
	}
}

func TestNamedParametersAreRecordedAsMap(t *testing.T) {
	e := openEngine(t, "named", engine.WithURL("postgresql://db/app"))
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/named", deps.NewDependant(deps.Depends("db", sessionOn(e))),
		func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
			s, _ := deps.Get[*session.Session](vals, "db")
			queryInt(t, r, s, "SELECT @two", sql.Named("two", int64(2)))
		})

	p := New(rt, utils.NewDiscardLogger())
	serve(p, mux, httptest.NewRequest(http.MethodGet, "/named", nil))

	recs := p.Log().Queries("postgresql://db/app")
	if len(recs) != 1 || recs[0].Statement != "SELECT @two" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if want := map[string]any{"two": int64(2)}; !reflect.DeepEqual(recs[0].Parameters, want) {
		t.Fatalf("expected %v, got %#v", want, recs[0].Parameters)
	}
}

func TestStatementsOutsideRequestContextAreNotRecorded(t *testing.T) {
	e := openEngine(t, "detached")
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/detached", deps.NewDependant(deps.Depends("db", sessionOn(e))),
		func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
			s, _ := deps.Get[*session.Session](vals, "db")
			if e.ListenerCount() != 1 {
				t.Errorf("expected the hook to be installed, got %d", e.ListenerCount())
			}
			if _, err := s.ExecContext(context.Background(), "SELECT 'background'"); err != nil {
				t.Errorf("exec: %v", err)
			}
			done := make(chan error, 1)
			go func() {
				_, err := s.ExecContext(context.Background(), "SELECT 'goroutine'")
				done <- err
			}()
			if err := <-done; err != nil {
				t.Errorf("exec: %v", err)
			}
			queryInt(t, r, s, "SELECT 1")
		})

	p := New(rt, utils.NewDiscardLogger())
	serve(p, mux, httptest.NewRequest(http.MethodGet, "/detached", nil))

	recs := p.Log().Queries(e.URL())
	if len(recs) != 1 || recs[0].Statement != "SELECT 1" {
		t.Fatalf("expected only the request-scoped statement, got %+v", recs)
	}
	if p.Hook().Pending() != 0 {
		t.Fatalf("side table must be empty, got %d", p.Hook().Pending())
	}
}

func TestShardedEnginesAreDiscoveredOnce(t *testing.T) {
	a := openEngine(t, "a")
	b := openEngine(t, "b")
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/shards", deps.NewDependant(
		deps.Depends("sharded", func(*deps.Call) (any, error) {
			return session.NewSharded(map[string]*engine.Engine{"a": a, "b": b}, nil), nil
		}),
		deps.Depends("primary", sessionOn(a)),
		deps.Depends("async", func(*deps.Call) (any, error) {
			return session.NewAsync(session.New(b)), nil
		}),
		deps.Depends("multi", func(*deps.Call) (any, error) {
			return session.NewMulti(map[string]*engine.Engine{"notes": a, "archive": b}, a), nil
		}),
	), func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
		if a.ListenerCount() != 1 || b.ListenerCount() != 1 {
			t.Errorf("expected one hook per engine, got a=%d b=%d", a.ListenerCount(), b.ListenerCount())
		}
		sh, _ := deps.Get[*session.Sharded](vals, "sharded")
		err := sh.Each(r.Context(), func(ctx context.Context, id string, s *session.Session) error {
			_, err := s.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS t (id INTEGER)")
			return err
		})
		if err != nil {
			t.Errorf("each: %v", err)
		}
	})

	p := New(rt, nil)
	serve(p, mux, httptest.NewRequest(http.MethodGet, "/shards", nil))

	d := p.Discovery()
	if d.Outcome != Complete || len(d.Engines) != 2 {
		t.Fatalf("expected two distinct engines, got %+v", d)
	}
	if !(d.Engines[0] == a && d.Engines[1] == b) && !(d.Engines[0] == b && d.Engines[1] == a) {
		t.Fatalf("unexpected engines: %v", d.Engines)
	}
	if len(p.Log().Queries(a.URL())) != 1 || len(p.Log().Queries(b.URL())) != 1 {
		t.Fatalf("expected one statement per shard")
	}
	if a.ListenerCount() != 0 || b.ListenerCount() != 0 {
		t.Fatalf("hooks left behind")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	e := openEngine(t, "idem")
	p := New(nil, nil)

	p.Unregister(e)
	p.Unregister(nil)
	if e.ListenerCount() != 0 || len(p.Log().Keys()) != 0 {
		t.Fatalf("unregister of unknown engine must not change anything")
	}

	p.Register(e)
	p.Register(e)
	if e.ListenerCount() != 1 {
		t.Fatalf("expected one registration entry, got %d", e.ListenerCount())
	}
	p.Unregister(e)
	if e.ListenerCount() != 1 || len(p.Engines()) != 1 {
		t.Fatalf("first unregister must keep the second registration")
	}
	p.Unregister(e)
	p.Unregister(e)
	if e.ListenerCount() != 0 || len(p.Engines()) != 0 {
		t.Fatalf("expected no registrations, got %d", e.ListenerCount())
	}
}

func TestConcurrentRequestsOnSharedEngineAreIsolated(t *testing.T) {
	e := openEngine(t, "shared")
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)

	var barrier sync.WaitGroup
	barrier.Add(2)
	rt.Get("/echo/{n}", deps.NewDependant(
		deps.Depends("db", sessionOn(e)),
		deps.Depends("n", func(c *deps.Call) (any, error) { return chi.URLParam(c.Request, "n"), nil }),
	), func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
		s, _ := deps.Get[*session.Session](vals, "db")
		n := vals["n"].(string)
		queryInt(t, r, s, "SELECT length(?)", n)
		barrier.Done()
		barrier.Wait()
		queryInt(t, r, s, "SELECT length(?) + 1", n)
	})

	panels := []*Panel{New(rt, nil), New(rt, nil)}
	paths := []string{"/echo/one", "/echo/three"}
	var wg sync.WaitGroup
	for i := range panels {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			serve(panels[i], mux, httptest.NewRequest(http.MethodGet, paths[i], nil))
		}(i)
	}
	wg.Wait()

	want := []string{"one", "three"}
	for i, p := range panels {
		recs := p.Log().Queries(e.URL())
		if len(recs) != 2 {
			t.Fatalf("panel %d: expected 2 records, got %d", i, len(recs))
		}
		for _, rec := range recs {
			if !reflect.DeepEqual(rec.Parameters, []any{want[i]}) {
				t.Fatalf("panel %d saw a foreign statement: %+v", i, rec)
			}
		}
	}
	if e.ListenerCount() != 0 {
		t.Fatalf("expected no residual hooks, got %d", e.ListenerCount())
	}
}

func TestCleanupRunsWhenHandlerPanics(t *testing.T) {
	a := openEngine(t, "a")
	b := openEngine(t, "b")
	boom := errors.New("boom")
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/panic", deps.NewDependant(
		deps.Depends("a", sessionOn(a)),
		deps.Depends("b", sessionOn(b)),
	), func(http.ResponseWriter, *http.Request, deps.Values) {
		panic(boom)
	})

	p := New(rt, nil)
	func() {
		defer func() {
			if rec := recover(); rec != boom {
				t.Fatalf("expected the handler's panic value, got %v", rec)
			}
		}()
		serve(p, mux, httptest.NewRequest(http.MethodGet, "/panic", nil))
	}()

	if a.ListenerCount() != 0 || b.ListenerCount() != 0 {
		t.Fatalf("hooks survived the panic: a=%d b=%d", a.ListenerCount(), b.ListenerCount())
	}
	if p.State() != Done || len(p.Engines()) != 0 {
		t.Fatalf("unexpected state after panic: %v", p.State())
	}
}

func TestClientErrorDuringDiscoveryIsSwallowed(t *testing.T) {
	e := openEngine(t, "auth")
	mux := chi.NewRouter()
	rt := deps.NewRoutes(mux, nil)
	rt.Get("/me", deps.NewDependant(
		deps.Depends("db", sessionOn(e)),
		deps.Depends("user", func(c *deps.Call) (any, error) {
			if c.Request.Header.Get("Authorization") == "" {
				return nil, deps.Errorf(http.StatusUnauthorized, "not authenticated")
			}
			return "bob", nil
		}),
	), func(w http.ResponseWriter, r *http.Request, vals deps.Values) {
		_, _ = w.Write([]byte(vals["user"].(string)))
	})

	p := New(rt, utils.NewDiscardLogger())
	rr := serve(p, mux, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("the real handler's status must pass through, got %d", rr.Code)
	}
	d := p.Discovery()
	if d.Outcome != Partial || !deps.IsClientError(d.Err) {
		t.Fatalf("expected partial outcome with client error, got %+v", d)
	}
	if len(d.Engines) != 1 || d.Engines[0] != e {
		t.Fatalf("engines resolved before the failure must be kept, got %v", d.Engines)
	}
	if e.ListenerCount() != 0 {
		t.Fatalf("hook left behind")
	}
}

type brokenSource struct{}

func (brokenSource) ResolveEngines() ([]*engine.Engine, error) { panic("broken") }

type staticResolver struct {
	vals deps.Values
	ok   bool
	err  error
	boom bool
}

func (s staticResolver) ResolveRequest(*http.Request, *deps.Scope) (deps.Values, bool, error) {
	if s.boom {
		panic("resolver")
	}
	return s.vals, s.ok, s.err
}

func TestDiscoveryIsolatesFailures(t *testing.T) {
	e := openEngine(t, "iso")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	log := utils.NewDiscardLogger()

	d := DiscoverEngines(req, staticResolver{ok: true, vals: deps.Values{
		"broken":  brokenSource{},
		"closed":  func() *session.Session { s := session.New(e); _ = s.Close(); return s }(),
		"good":    session.New(e),
		"again":   session.NewAsync(session.New(e)),
		"unbound": session.New(nil),
		"other":   42,
	}}, log)
	if d.Outcome != Partial || len(d.Engines) != 1 || d.Engines[0] != e {
		t.Fatalf("unexpected discovery: %+v", d)
	}
	if !reflect.DeepEqual(d.Failed, []string{"broken", "closed", "unbound"}) {
		t.Fatalf("unexpected failed values: %v", d.Failed)
	}

	d = DiscoverEngines(req, staticResolver{boom: true}, log)
	if d.Outcome != Partial || d.Err == nil || len(d.Engines) != 0 {
		t.Fatalf("resolver panic must be contained: %+v", d)
	}

	d = DiscoverEngines(req, staticResolver{ok: true, err: errors.New("db down"), vals: deps.Values{"good": session.New(e)}}, log)
	if d.Outcome != Partial || deps.IsClientError(d.Err) || len(d.Engines) != 1 {
		t.Fatalf("server errors are contained too: %+v", d)
	}

	if d := DiscoverEngines(req, staticResolver{}, log); d.Outcome != NoRoute {
		t.Fatalf("expected no route, got %v", d.Outcome)
	}
	if d := DiscoverEngines(req, nil, log); d.Outcome != NoRoute {
		t.Fatalf("expected no route for nil resolver, got %v", d.Outcome)
	}
}

func TestHookIgnoresStatementsFromOtherContexts(t *testing.T) {
	e := openEngine(t, "ctx")
	p := New(nil, nil)
	p.Register(e)
	defer p.Unregister(e)

	if _, err := e.DB().ExecContext(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	ctx := p.Hook().Context(context.Background())
	if _, err := e.DB().ExecContext(ctx, "SELECT 2"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if _, err := e.DB().ExecContext(ctx, "SELECT * FROM missing"); err == nil {
		t.Fatalf("expected error for missing table")
	}

	recs := p.Log().Queries(e.URL())
	if len(recs) != 1 || recs[0].Statement != "SELECT 2" {
		t.Fatalf("expected only the tagged successful statement, got %+v", recs)
	}
	if p.Hook().Pending() != 0 {
		t.Fatalf("side table must be empty, got %d", p.Hook().Pending())
	}
}

func TestStatsReportsQueriesByEngine(t *testing.T) {
	e := openEngine(t, "stats", engine.WithURL("sqlite:///stats.db"))
	p := New(nil, nil)
	p.Register(e)
	ctx := p.Hook().Context(context.Background())
	for i := 0; i < 2; i++ {
		if _, err := e.DB().ExecContext(ctx, "SELECT 1"); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	p.Unregister(e)

	st, ok := p.Stats().(Stats)
	if !ok {
		t.Fatalf("unexpected stats type %T", p.Stats())
	}
	if st.Summary.Count != 2 || len(st.Summary.Engines) != 1 || st.Summary.Engines[0].Duplicates != 1 {
		t.Fatalf("unexpected summary: %+v", st.Summary)
	}
	if len(st.Engines) != 1 || st.Engines[0].URL != "sqlite:///stats.db" || len(st.Engines[0].Queries) != 2 {
		t.Fatalf("unexpected engines: %+v", st.Engines)
	}
	if st.State != "idle" || st.Outcome != "complete" {
		t.Fatalf("unexpected state/outcome: %s %s", st.State, st.Outcome)
	}
}
