package querylog

import "testing"

func TestAddQueryKeepsOrderPerKey(t *testing.T) {
	l := NewLog()
	l.AddQuery("sqlite:///a.db", Record{Duration: 1, Statement: "SELECT 1"})
	l.AddQuery("postgresql://db/app", Record{Duration: 2, Statement: "SELECT 2"})
	l.AddQuery("sqlite:///a.db", Record{Duration: 3, Statement: "SELECT 3"})

	keys := l.Keys()
	if len(keys) != 2 || keys[0] != "sqlite:///a.db" || keys[1] != "postgresql://db/app" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	got := l.Queries("sqlite:///a.db")
	if len(got) != 2 || got[0].Statement != "SELECT 1" || got[1].Statement != "SELECT 3" {
		t.Fatalf("unexpected records: %+v", got)
	}
	got[0].Statement = "mutated"
	if l.Queries("sqlite:///a.db")[0].Statement != "SELECT 1" {
		t.Fatalf("Queries must return a copy")
	}
	if len(l.Queries("unknown")) != 0 {
		t.Fatalf("expected no records for unknown key")
	}
}

func TestStatsCountsDuplicates(t *testing.T) {
	l := NewLog()
	l.AddQuery("k", Record{Duration: 1.5, Statement: "SELECT * FROM notes WHERE id = ?", Parameters: []any{int64(1)}})
	l.AddQuery("k", Record{Duration: 0.5, Statement: "SELECT * FROM notes WHERE id = ?", Parameters: []any{int64(1)}})
	l.AddQuery("k", Record{Duration: 1, Statement: "SELECT * FROM notes WHERE id = ?", Parameters: []any{int64(2)}})

	st := l.Stats()
	if st.Count != 3 || st.Duration != 3 {
		t.Fatalf("unexpected totals: %+v", st)
	}
	if len(st.Engines) != 1 || st.Engines[0].Duplicates != 1 {
		t.Fatalf("unexpected per-engine stats: %+v", st.Engines)
	}
}

func TestZeroValueLogIsUsable(t *testing.T) {
	var l Log
	l.AddQuery("k", Record{Statement: "SELECT 1"})
	if len(l.Queries("k")) != 1 {
		t.Fatalf("expected one record")
	}
}
