package store

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"querypanel/core/engine"
	"querypanel/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var gooseMigrationsFS embed.FS

const gooseTable = "goose_db_version"

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

func migrationsDir(e *engine.Engine) (dir, dialect string, err error) {
	switch e.Driver() {
	case "postgres":
		return "migrations/postgres", "postgres", nil
	case "sqlite":
		return "migrations/sqlite", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("%w: %s", engine.ErrUnknownDriver, e.Driver())
	}
}

// ApplyMigrations brings the notes schema of e up to date.
func ApplyMigrations(ctx context.Context, e *engine.Engine, logger *utils.Logger) error {
	if e == nil {
		return fmt.Errorf("nil engine")
	}
	dir, dialect, err := migrationsDir(e)
	if err != nil {
		return err
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(gooseMigrationsFS)
	goose.SetTableName(gooseTable)
	if logger != nil {
		logger.Printf("applying goose migrations on %s", e.Name())
	}
	if err := goose.UpContext(ctx, e.DB(), dir); err != nil {
		return fmt.Errorf("migrate %s: %w", e.Name(), err)
	}
	if logger != nil {
		logger.Printf("goose migrations applied on %s", e.Name())
	}
	return nil
}
