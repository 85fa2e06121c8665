// Package toolbar runs a chain of diagnostic panels around each request and
// keeps the finished toolbars for later inspection.
package toolbar

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

const HeaderID = "X-Debug-Toolbar-Id"

// Panel observes one request. ProcessRequest must call next exactly once and
// must not change the response next produces.
type Panel interface {
	ID() string
	Title() string
	ProcessRequest(w http.ResponseWriter, r *http.Request, next http.Handler)
	Stats() any
}

// Factory builds a fresh panel for one request. Panels are never shared
// between requests.
type Factory func() Panel

type Toolbar struct {
	ID        string
	Method    string
	Path      string
	StartedAt time.Time

	panels []Panel

	mu         sync.Mutex
	status     int
	duration   time.Duration
	finishedAt time.Time
}

type PanelSnapshot struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Stats any    `json:"stats"`
}

type Snapshot struct {
	ID         string          `json:"store_id"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	Status     int             `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs float64         `json:"duration_ms"`
	Panels     []PanelSnapshot `json:"panels,omitempty"`
}

func newToolbar(r *http.Request, factories []Factory) *Toolbar {
	tb := &Toolbar{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Method:    r.Method,
		Path:      r.URL.Path,
		StartedAt: time.Now(),
	}
	for _, f := range factories {
		if p := f(); p != nil {
			tb.panels = append(tb.panels, p)
		}
	}
	return tb
}

func (t *Toolbar) Panels() []Panel {
	out := make([]Panel, len(t.panels))
	copy(out, t.panels)
	return out
}

func (t *Toolbar) Panel(id string) (Panel, bool) {
	for _, p := range t.panels {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

func (t *Toolbar) finish(status int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.finishedAt = time.Now()
	t.duration = t.finishedAt.Sub(t.StartedAt)
}

func (t *Toolbar) Status() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Toolbar) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// Snapshot renders the toolbar; panel stats are included when withPanels is set.
func (t *Toolbar) Snapshot(withPanels bool) Snapshot {
	t.mu.Lock()
	s := Snapshot{
		ID:         t.ID,
		Method:     t.Method,
		Path:       t.Path,
		Status:     t.status,
		StartedAt:  t.StartedAt.UTC(),
		DurationMs: float64(t.duration) / float64(time.Millisecond),
	}
	t.mu.Unlock()
	if withPanels {
		for _, p := range t.panels {
			s.Panels = append(s.Panels, PanelSnapshot{ID: p.ID(), Title: p.Title(), Stats: p.Stats()})
		}
	}
	return s
}

func chain(panels []Panel, final http.Handler) http.Handler {
	h := final
	for i := len(panels) - 1; i >= 0; i-- {
		p, inner := panels[i], h
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.ProcessRequest(w, r, inner)
		})
	}
	return h
}
