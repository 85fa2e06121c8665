package toolbar

import (
	"net"
	"net/http"
	"strings"

	"querypanel/core/utils"
)

type Options struct {
	// AllowedHosts lists client IPs or CIDRs the toolbar runs for. Empty
	// means every client.
	AllowedHosts []string
	// SkipPrefixes are path prefixes that never get a toolbar.
	SkipPrefixes []string
}

type Middleware struct {
	factories []Factory
	store     *Store
	opts      Options
	logger    *utils.Logger
}

func NewMiddleware(store *Store, opts Options, logger *utils.Logger, factories ...Factory) *Middleware {
	return &Middleware{factories: factories, store: store, opts: opts, logger: logger}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.show(r) {
			next.ServeHTTP(w, r)
			return
		}
		tb := newToolbar(r, m.factories)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rec.Header().Set(HeaderID, tb.ID)
		completed := false
		defer func() {
			status := rec.status
			if !completed {
				status = http.StatusInternalServerError
			}
			tb.finish(status)
			if m.store != nil {
				m.store.Put(tb)
			}
			if m.logger != nil {
				m.logger.Debugf("toolbar %s %s %s status=%d", tb.ID, r.Method, r.URL.Path, status)
			}
		}()
		chain(tb.panels, next).ServeHTTP(rec, r)
		completed = true
	})
}

func (m *Middleware) show(r *http.Request) bool {
	for _, prefix := range m.opts.SkipPrefixes {
		if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	if len(m.opts.AllowedHosts) == 0 {
		return true
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	return isAllowedHost(ip, m.opts.AllowedHosts)
}

func isAllowedHost(ip string, allowed []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range allowed {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
