package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"querypanel/core/engine"

	"github.com/pressly/goose/v3"
)

type MigrationStatus struct {
	Engine         string    `json:"engine"`
	NowUTC         time.Time `json:"now_utc"`
	CurrentVersion int64     `json:"current_version"`
	LatestVersion  int64     `json:"latest_version"`
	HasPending     bool      `json:"has_pending"`
}

func GetMigrationStatus(ctx context.Context, e *engine.Engine) (MigrationStatus, error) {
	now := time.Now().UTC()
	if e == nil {
		return MigrationStatus{NowUTC: now}, fmt.Errorf("nil engine")
	}
	st := MigrationStatus{Engine: e.Name(), NowUTC: now}
	dir, dialect, err := migrationsDir(e)
	if err != nil {
		return st, err
	}
	latest, err := latestGooseMigrationVersion(dir)
	if err != nil {
		return st, err
	}
	st.LatestVersion = latest

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := goose.SetDialect(dialect); err != nil {
		return st, err
	}
	goose.SetTableName(gooseTable)
	current, err := goose.GetDBVersionContext(ctx, e.DB())
	if err != nil {
		return st, err
	}
	st.CurrentVersion = current
	st.HasPending = latest > current
	return st, nil
}

func latestGooseMigrationVersion(dir string) (int64, error) {
	entries, err := fs.Glob(gooseMigrationsFS, dir+"/*.sql")
	if err != nil {
		return 0, err
	}
	var max int64
	for _, p := range entries {
		// 00002_notes_archived.sql
		prefix, _, _ := strings.Cut(path.Base(p), "_")
		n, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}
