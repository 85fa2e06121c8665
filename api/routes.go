package api

import (
	"net/http"

	"querypanel/core/deps"
)

func (s *Server) registerRoutes() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.loggingMiddleware)
	if s.toolbar != nil {
		s.router.Use(s.toolbarMiddleware().Handler)
	}

	s.registerObservabilityRoutes()
	if s.toolbar != nil {
		s.registerToolbarRoutes()
	}

	s.routes.Get("/notes", deps.NewDependant(
		deps.Depends("db", s.primarySession),
		deps.Depends("limit", queryLimit),
	), s.listNotes)
	s.routes.Post("/notes", deps.NewDependant(
		deps.Depends("db", s.primarySession),
		deps.Depends("input", decodeNoteInput),
	), s.createNote)
	s.routes.Get("/notes/{id}", deps.NewDependant(
		deps.Depends("db", s.primarySession),
		deps.Depends("note_id", noteID),
	), s.getNote)
	s.routes.Get("/archive", deps.NewDependant(
		deps.Depends("shards", s.shardedSession),
	), s.archiveCounts)
	s.routes.Get("/stats", deps.NewDependant(
		deps.Depends("async", s.asyncSession),
		deps.Depends("multi", s.multiSession),
	), s.stats)
	s.routes.Get("/me", deps.NewDependant(
		deps.Depends("db", s.primarySession),
		deps.Depends("user", currentUser),
	), s.me)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONPlain(w, http.StatusNotFound, map[string]any{"detail": "not found"})
	})
}
