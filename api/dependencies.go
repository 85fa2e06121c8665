package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"querypanel/core/deps"
	"querypanel/core/engine"
	"querypanel/core/session"

	"github.com/go-chi/chi/v5"
)

const maxNoteBody = 64 << 10

type noteInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) primary() *engine.Engine {
	e, _ := s.engines.Get("primary")
	return e
}

func (s *Server) primarySession(c *deps.Call) (any, error) {
	sess := session.New(s.primary())
	c.Scope.Defer(sess.Close)
	return sess, nil
}

// shardedSession spans every configured engine; each one holds its own notes
// table.
func (s *Server) shardedSession(c *deps.Call) (any, error) {
	shards := map[string]*engine.Engine{}
	for _, e := range s.engines.All() {
		shards[e.Name()] = e
	}
	sh := session.NewSharded(shards, nil)
	c.Scope.Defer(sh.Close)
	return sh, nil
}

func (s *Server) asyncSession(c *deps.Call) (any, error) {
	a := session.NewAsync(session.New(s.primary()))
	c.Scope.Defer(a.Close)
	return a, nil
}

// multiSession binds the archive entity to the archive engine when one is
// configured.
func (s *Server) multiSession(c *deps.Call) (any, error) {
	binds := map[string]*engine.Engine{"notes": s.primary()}
	if e, ok := s.engines.Get("archive"); ok {
		binds["archive"] = e
	}
	sess := session.NewMulti(binds, s.primary())
	c.Scope.Defer(sess.Close)
	return sess, nil
}

func currentUser(c *deps.Call) (any, error) {
	raw := strings.TrimSpace(c.Request.Header.Get("Authorization"))
	name, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(name) == "" {
		return nil, deps.Errorf(http.StatusUnauthorized, "not authenticated")
	}
	return strings.TrimSpace(name), nil
}

func noteID(c *deps.Call) (any, error) {
	raw := chi.URLParam(c.Request, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, deps.Errorf(http.StatusUnprocessableEntity, "invalid note id %q", raw)
	}
	return id, nil
}

func queryLimit(c *deps.Call) (any, error) {
	raw := strings.TrimSpace(c.Request.URL.Query().Get("limit"))
	if raw == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return nil, deps.Errorf(http.StatusUnprocessableEntity, "limit must be between 1 and 500")
	}
	return n, nil
}

func decodeNoteInput(c *deps.Call) (any, error) {
	var in noteInput
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxNoteBody)).Decode(&in); err != nil {
		return nil, deps.Errorf(http.StatusBadRequest, "invalid json body")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, deps.Errorf(http.StatusUnprocessableEntity, "title is required")
	}
	return in, nil
}
