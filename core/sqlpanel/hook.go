package sqlpanel

import (
	"context"
	"sync"
	"time"

	"querypanel/core/engine"
	"querypanel/core/querylog"

	"github.com/gofrs/uuid/v5"
)

// QuerySink receives one record per completed statement, keyed by the
// reportable URL of the engine that ran it.
type QuerySink interface {
	AddQuery(key string, rec querylog.Record)
}

type hookKey struct{ id uuid.UUID }

// Hook times the statements of one request. It is registered on each engine
// under its own id and only reacts to executions whose context was derived
// from Context, so a hook on a shared engine never sees other requests.
type Hook struct {
	id   uuid.UUID
	sink QuerySink

	mu      sync.Mutex
	started map[uuid.UUID]time.Time
}

func NewHook(sink QuerySink) *Hook {
	return &Hook{
		id:      uuid.Must(uuid.NewV4()),
		sink:    sink,
		started: map[uuid.UUID]time.Time{},
	}
}

func (h *Hook) ID() uuid.UUID { return h.id }

// Context tags ctx so statements executed with it are timed by h.
func (h *Hook) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, hookKey{id: h.id}, true)
}

func (h *Hook) owns(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	tagged, _ := ctx.Value(hookKey{id: h.id}).(bool)
	return tagged
}

func (h *Hook) Install(e *engine.Engine) {
	e.Listen(h.id, h)
}

// Uninstall removes one registration of h from e. It reports false, and does
// nothing else, when h is not registered there.
func (h *Hook) Uninstall(e *engine.Engine) bool {
	return e.Remove(h.id)
}

func (h *Hook) BeforeExecute(ex *engine.Execution) {
	if !h.owns(ex.Context) {
		return
	}
	h.mu.Lock()
	h.started[ex.ID] = time.Now()
	h.mu.Unlock()
}

func (h *Hook) AfterExecute(ex *engine.Execution) {
	if !h.owns(ex.Context) {
		return
	}
	h.mu.Lock()
	start, ok := h.started[ex.ID]
	delete(h.started, ex.ID)
	h.mu.Unlock()
	// failed statements produce no record; skipped ones are retried and
	// observed again
	if !ok || ex.Err != nil || h.sink == nil {
		return
	}
	h.sink.AddQuery(ex.Engine.URL(), querylog.Record{
		Duration:   float64(time.Since(start)) / float64(time.Millisecond),
		Statement:  ex.Statement,
		Parameters: ex.Parameters,
	})
}

// Pending returns the number of statements started but not yet finished.
func (h *Hook) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.started)
}
