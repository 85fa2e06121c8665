package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"querypanel/config"
	"querypanel/core/deps"
	"querypanel/core/sqlpanel"
	"querypanel/core/store"
	"querypanel/core/toolbar"
	"querypanel/core/utils"

	"github.com/go-chi/chi/v5"
)

const toolbarPrefix = "/_debug_toolbar"

type ServerDeps struct {
	Engines *store.Engines
	Notes   store.NotesStore
}

type Server struct {
	cfg        *config.AppConfig
	router     *chi.Mux
	routes     *deps.Routes
	httpServer *http.Server
	logger     *utils.Logger
	engines    *store.Engines
	notes      store.NotesStore
	toolbar    *toolbar.Store
}

func NewServer(cfg *config.AppConfig, logger *utils.Logger, sd ServerDeps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if _, ok := sd.Engines.Get("primary"); !ok {
		return nil, errors.New("primary engine is required")
	}
	if sd.Notes == nil {
		sd.Notes = store.NewNotesStore()
	}
	router := chi.NewRouter()
	s := &Server{
		cfg:     cfg,
		router:  router,
		routes:  deps.NewRoutes(router, logger),
		logger:  logger,
		engines: sd.Engines,
		notes:   sd.Notes,
	}
	if cfg.Toolbar.Enabled {
		ts, err := toolbar.NewStore(cfg.Toolbar.MaxRequests, cfg.Toolbar.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("toolbar: %w", err)
		}
		s.toolbar = ts
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Routes exposes the dependency-aware routes, mainly for overrides in tests.
func (s *Server) Routes() *deps.Routes { return s.routes }

func (s *Server) Toolbar() *toolbar.Store { return s.toolbar }

func (s *Server) toolbarMiddleware() *toolbar.Middleware {
	return toolbar.NewMiddleware(s.toolbar, toolbar.Options{
		AllowedHosts: s.cfg.Toolbar.AllowedHosts,
		SkipPrefixes: []string{toolbarPrefix, "/metrics", "/healthz", "/readyz"},
	}, s.logger,
		toolbar.NewTimerPanel,
		sqlpanel.Factory(s.routes, s.logger),
	)
}

func (s *Server) Start() error {
	if s.toolbar != nil {
		if err := s.toolbar.StartPruner(s.cfg.Toolbar.PruneSchedule); err != nil {
			return err
		}
	}
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if s.logger != nil {
		s.logger.Printf("listening on %s (toolbar=%v)", s.cfg.ListenAddr, s.toolbar != nil)
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	if s.toolbar != nil {
		s.toolbar.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
