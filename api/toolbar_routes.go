package api

import (
	"net/http"

	"querypanel/core/toolbar"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerToolbarRoutes() {
	s.router.Route(toolbarPrefix, func(r chi.Router) {
		r.Get("/", s.listToolbars)
		r.Get("/{store_id}", s.getToolbar)
		r.Get("/{store_id}/{panel_id}", s.getToolbarPanel)
	})
}

func (s *Server) listToolbars(w http.ResponseWriter, r *http.Request) {
	list := s.toolbar.List()
	out := make([]toolbar.Snapshot, 0, len(list))
	for _, tb := range list {
		out = append(out, tb.Snapshot(false))
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) getToolbar(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.toolbar.Get(chi.URLParam(r, "store_id"))
	if !ok {
		writeJSONPlain(w, http.StatusNotFound, map[string]any{"detail": "toolbar not found"})
		return
	}
	writeJSONPlain(w, http.StatusOK, tb.Snapshot(true))
}

func (s *Server) getToolbarPanel(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.toolbar.Get(chi.URLParam(r, "store_id"))
	if !ok {
		writeJSONPlain(w, http.StatusNotFound, map[string]any{"detail": "toolbar not found"})
		return
	}
	p, ok := tb.Panel(chi.URLParam(r, "panel_id"))
	if !ok {
		writeJSONPlain(w, http.StatusNotFound, map[string]any{"detail": "panel not found"})
		return
	}
	writeJSONPlain(w, http.StatusOK, toolbar.PanelSnapshot{ID: p.ID(), Title: p.Title(), Stats: p.Stats()})
}
