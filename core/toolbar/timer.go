package toolbar

import (
	"net/http"
	"sync"
	"time"
)

// TimerPanel reports the wall time spent in the panels after it and the
// handler.
type TimerPanel struct {
	mu      sync.Mutex
	elapsed time.Duration
}

func NewTimerPanel() Panel { return &TimerPanel{} }

func (p *TimerPanel) ID() string    { return "TimerPanel" }
func (p *TimerPanel) Title() string { return "Time" }

func (p *TimerPanel) ProcessRequest(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.elapsed = time.Since(start)
		p.mu.Unlock()
	}()
	next.ServeHTTP(w, r)
}

func (p *TimerPanel) Stats() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{"total_ms": float64(p.elapsed) / float64(time.Millisecond)}
}
