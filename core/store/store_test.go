package store

import (
	"context"
	"path/filepath"
	"testing"

	"querypanel/config"
	"querypanel/core/session"
	"querypanel/core/utils"
)

func openTestEngines(t *testing.T, names ...string) *Engines {
	t.Helper()
	dir := t.TempDir()
	var cfgs []config.EngineConfig
	for _, name := range names {
		cfgs = append(cfgs, config.EngineConfig{Name: name, Driver: "sqlite", DSN: filepath.Join(dir, name+".db")})
	}
	es, err := OpenEngines(cfgs, utils.NewDiscardLogger())
	if err != nil {
		t.Fatalf("open engines: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEnginesKeepsOrderAndRejectsUnknownDriver(t *testing.T) {
	es := openTestEngines(t, "primary", "archive")
	all := es.All()
	if len(all) != 2 || all[0].Name() != "primary" || all[1].Name() != "archive" {
		t.Fatalf("unexpected engines: %v", all)
	}
	if names := es.Names(); names[0] != "archive" {
		t.Fatalf("names must be sorted: %v", names)
	}
	if _, ok := es.Get("missing"); ok {
		t.Fatalf("unexpected engine")
	}

	_, err := OpenEngines([]config.EngineConfig{{Name: "x", Driver: "oracle", DSN: "x"}}, nil)
	if err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestApplyMigrationsAndStatus(t *testing.T) {
	es := openTestEngines(t, "primary")
	e, _ := es.Get("primary")
	ctx := context.Background()

	st, err := GetMigrationStatus(ctx, e)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.HasPending || st.LatestVersion != 2 {
		t.Fatalf("unexpected status before migrate: %+v", st)
	}
	if err := ApplyMigrations(ctx, e, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := ApplyMigrations(ctx, e, nil); err != nil {
		t.Fatalf("second migrate must be a no-op: %v", err)
	}
	st, err = GetMigrationStatus(ctx, e)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.HasPending || st.CurrentVersion != 2 {
		t.Fatalf("unexpected status after migrate: %+v", st)
	}
}

func TestNotesStoreRoundTrip(t *testing.T) {
	es := openTestEngines(t, "primary")
	e, _ := es.Get("primary")
	ctx := context.Background()
	if err := ApplyMigrations(ctx, e, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := session.New(e)
	notes := NewNotesStore()

	if _, err := notes.Create(ctx, s, "  ", "x"); err == nil {
		t.Fatalf("expected error for empty title")
	}
	first, err := notes.Create(ctx, s, "first", "hello")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == 0 || first.CreatedAt.IsZero() || first.Archived {
		t.Fatalf("unexpected note: %+v", first)
	}
	if _, err := notes.Create(ctx, s, "second", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := notes.List(ctx, s, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Title != "second" {
		t.Fatalf("unexpected list: %+v", list)
	}
	got, err := notes.Get(ctx, s, first.ID)
	if err != nil || got == nil || got.Body != "hello" {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	missing, err := notes.Get(ctx, s, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil note for missing id, got %+v err=%v", missing, err)
	}
	if n, err := notes.Count(ctx, s); err != nil || n != 2 {
		t.Fatalf("count: %d err=%v", n, err)
	}

	_ = s.Close()
	if _, err := notes.List(ctx, s, 10); err == nil {
		t.Fatalf("closed session must fail")
	}
}
