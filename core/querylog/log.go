// Package querylog stores the statements captured during one request,
// grouped by the reportable URL of the engine that ran them.
package querylog

import (
	"fmt"
	"sync"
)

// Record is one executed statement. Duration is in milliseconds.
type Record struct {
	Duration   float64 `json:"duration"`
	Statement  string  `json:"sql"`
	Parameters any     `json:"params"`
}

type KeyStats struct {
	Key        string  `json:"key"`
	Count      int     `json:"count"`
	Duration   float64 `json:"duration"`
	Duplicates int     `json:"duplicates"`
}

type Stats struct {
	Count    int        `json:"count"`
	Duration float64    `json:"duration"`
	Engines  []KeyStats `json:"engines"`
}

// Log is append-only. It is safe for concurrent use because a handler may
// run statements from several goroutines.
type Log struct {
	mu    sync.Mutex
	keys  []string
	byKey map[string][]Record
}

func NewLog() *Log {
	return &Log{byKey: map[string][]Record{}}
}

func (l *Log) AddQuery(key string, rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byKey == nil {
		l.byKey = map[string][]Record{}
	}
	if _, ok := l.byKey[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.byKey[key] = append(l.byKey[key], rec)
}

// Queries returns a copy of the records captured under key, in execution order.
func (l *Log) Queries(key string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.byKey[key]
	out := make([]Record, len(src))
	copy(out, src)
	return out
}

// Keys returns engine keys in first-seen order.
func (l *Log) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var st Stats
	for _, key := range l.keys {
		recs := l.byKey[key]
		ks := KeyStats{Key: key, Count: len(recs)}
		seen := make(map[string]int, len(recs))
		for _, r := range recs {
			ks.Duration += r.Duration
			seen[fingerprint(r)]++
		}
		for _, n := range seen {
			if n > 1 {
				ks.Duplicates += n - 1
			}
		}
		st.Count += ks.Count
		st.Duration += ks.Duration
		st.Engines = append(st.Engines, ks)
	}
	return st
}

func fingerprint(r Record) string {
	return fmt.Sprintf("%s\x00%#v", r.Statement, r.Parameters)
}
