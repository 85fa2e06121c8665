package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"querypanel/core/deps"
	"querypanel/core/session"
	"querypanel/core/store"
)

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	sess, _ := deps.Get[*session.Session](vals, "db")
	limit, _ := deps.Get[int](vals, "limit")
	items, err := s.notes.List(r.Context(), sess, limit)
	if err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []store.Note{}
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	sess, _ := deps.Get[*session.Session](vals, "db")
	in, _ := deps.Get[noteInput](vals, "input")
	n, err := s.notes.Create(r.Context(), sess, in.Title, in.Body)
	if err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	writeJSONPlain(w, http.StatusCreated, n)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	sess, _ := deps.Get[*session.Session](vals, "db")
	id, _ := deps.Get[int64](vals, "note_id")
	n, err := s.notes.Get(r.Context(), sess, id)
	if err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	if n == nil {
		s.routes.WriteError(w, r, deps.Errorf(http.StatusNotFound, "note %d not found", id))
		return
	}
	writeJSONPlain(w, http.StatusOK, n)
}

// archiveCounts counts the notes held by every shard.
func (s *Server) archiveCounts(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	sh, _ := deps.Get[*session.Sharded](vals, "shards")
	var mu sync.Mutex
	counts := map[string]int64{}
	err := sh.Each(r.Context(), func(ctx context.Context, id string, sess *session.Session) error {
		n, err := s.notes.Count(ctx, sess)
		if err != nil {
			return err
		}
		mu.Lock()
		counts[id] = n
		mu.Unlock()
		return nil
	})
	if err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{"shards": counts})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	a, _ := deps.Get[*session.Async](vals, "async")
	multi, _ := deps.Get[*session.Session](vals, "multi")

	var total int64
	done := a.Go(r.Context(), func(ctx context.Context, sess *session.Session) error {
		n, err := s.notes.Count(ctx, sess)
		total = n
		return err
	})
	out := map[string]any{}
	if e, err := multi.BindFor("archive"); err == nil {
		out["archive_engine"] = e.URL()
	}
	if err := <-done; err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	out["notes"] = total
	writeJSONPlain(w, http.StatusOK, out)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, vals deps.Values) {
	sess, _ := deps.Get[*session.Session](vals, "db")
	user, _ := deps.Get[string](vals, "user")
	n, err := s.notes.Count(r.Context(), sess)
	if err != nil {
		s.routes.WriteError(w, r, err)
		return
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{"user": user, "notes": n})
}

func writeJSONPlain(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
