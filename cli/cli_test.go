package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestSeedNotesAndListEngines(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "cli.db")
	t.Setenv("APP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DB_URL", dsn)
	t.Setenv("DB_DRIVER", "sqlite")

	var out bytes.Buffer
	if code := Run([]string{"seed-notes", "-t", "a, b"}, &out); code != 0 {
		t.Fatalf("seed-notes exit %d: %s", code, out.String())
	}
	if strings.Count(out.String(), "created") != 2 {
		t.Fatalf("unexpected output: %s", out.String())
	}

	out.Reset()
	if code := Run([]string{"engines"}, &out); code != 0 {
		t.Fatalf("engines exit %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "primary\tsqlite") || !strings.Contains(out.String(), "version=2/2") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	if code := Run(nil, &out); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	t.Setenv("APP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	out.Reset()
	if code := Run([]string{"bogus"}, &out); code != 2 || !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("unexpected result %d %s", code, out.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" x,, y ,")
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected split %v", got)
	}
}
