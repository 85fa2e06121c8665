package toolbar

import (
	"fmt"
	"sync"
	"time"

	"querypanel/core/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"
)

const (
	defaultMaxRequests = 100
	defaultPruneSpec   = "@every 1m"
)

// Store keeps the most recent toolbars. Entries older than ttl are dropped by
// Prune, which StartPruner runs on a cron schedule.
type Store struct {
	cache  *lru.Cache[string, *Toolbar]
	ttl    time.Duration
	logger *utils.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	puts   uint64
	pruned uint64
}

type StoreStats struct {
	Len     int
	Puts    uint64
	Evicted uint64
	Pruned  uint64
}

func NewStore(maxRequests int, ttl time.Duration, logger *utils.Logger) (*Store, error) {
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	s := &Store{ttl: ttl, logger: logger}
	cache, err := lru.New[string, *Toolbar](maxRequests)
	if err != nil {
		return nil, fmt.Errorf("toolbar store: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Store) Put(tb *Toolbar) {
	s.cache.Add(tb.ID, tb)
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
}

func (s *Store) Get(id string) (*Toolbar, bool) {
	return s.cache.Get(id)
}

// List returns stored toolbars, newest first.
func (s *Store) List() []*Toolbar {
	keys := s.cache.Keys()
	out := make([]*Toolbar, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if tb, ok := s.cache.Peek(keys[i]); ok {
			out = append(out, tb)
		}
	}
	return out
}

func (s *Store) Len() int { return s.cache.Len() }

// Prune removes toolbars finished before now-ttl. A zero ttl disables it.
func (s *Store) Prune(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-s.ttl)
	n := 0
	for _, key := range s.cache.Keys() {
		tb, ok := s.cache.Peek(key)
		if !ok {
			continue
		}
		if fin := tb.FinishedAt(); !fin.IsZero() && fin.Before(cutoff) {
			s.cache.Remove(key)
			n++
		}
	}
	s.mu.Lock()
	s.pruned += uint64(n)
	s.mu.Unlock()
	return n
}

func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StoreStats{Len: s.cache.Len(), Puts: s.puts, Pruned: s.pruned}
	// ids are unique, so whatever is neither stored nor pruned was evicted
	if gone := st.Puts - st.Pruned; gone > uint64(st.Len) {
		st.Evicted = gone - uint64(st.Len)
	}
	return st
}

func (s *Store) StartPruner(spec string) error {
	if spec == "" {
		spec = defaultPruneSpec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := s.Prune(time.Now()); n > 0 && s.logger != nil {
			s.logger.Debugf("toolbar store pruned %d entries", n)
		}
	}); err != nil {
		return fmt.Errorf("toolbar prune schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Store) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
