package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s", cfg.LogLevel)
	}
	if len(cfg.Engines) == 0 {
		return fmt.Errorf("at least one engine must be configured")
	}
	seen := map[string]bool{}
	for i, e := range cfg.Engines {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("engines[%d]: name must be set", i)
		}
		if seen[name] {
			return fmt.Errorf("engines[%d]: duplicate engine name %q", i, name)
		}
		seen[name] = true
		switch strings.ToLower(strings.TrimSpace(e.Driver)) {
		case "sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx":
		default:
			return fmt.Errorf("engine %s: unsupported driver: %s", name, e.Driver)
		}
		if strings.TrimSpace(e.DSN) == "" {
			return fmt.Errorf("engine %s: dsn must be set", name)
		}
		if e.MaxOpenConns < 0 || e.MaxIdleConns < 0 {
			return fmt.Errorf("engine %s: pool limits must not be negative", name)
		}
	}
	if !seen[defaultEngineName] {
		return fmt.Errorf("an engine named %q is required", defaultEngineName)
	}
	appEnv := strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	if cfg.Toolbar.Enabled {
		if appEnv != "dev" && !cfg.Toolbar.Force {
			return fmt.Errorf("toolbar.enabled is only allowed in APP_ENV=dev unless toolbar.force is set")
		}
		if cfg.Toolbar.TTL < 0 {
			return fmt.Errorf("toolbar.ttl must not be negative")
		}
		if spec := strings.TrimSpace(cfg.Toolbar.PruneSchedule); spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("toolbar.prune_schedule: %w", err)
			}
		}
	}
	if cfg.Observability.MetricsEnabled && appEnv != "dev" && strings.TrimSpace(cfg.Observability.MetricsToken) == "" {
		return fmt.Errorf("observability.metrics_token must be set outside APP_ENV=dev")
	}
	return nil
}
