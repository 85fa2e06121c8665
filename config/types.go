package config

import "time"

type AppConfig struct {
	ListenAddr    string              `yaml:"listen_addr" env:"QUERYPANEL_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv        string              `yaml:"app_env" env:"QUERYPANEL_APP_ENV" env-default:"dev"`
	LogLevel      string              `yaml:"log_level" env:"QUERYPANEL_LOG_LEVEL" env-default:"info"`
	Engines       []EngineConfig      `yaml:"engines"`
	Toolbar       ToolbarConfig       `yaml:"toolbar"`
	Observability ObservabilityConfig `yaml:"observability"`
}

func (c *AppConfig) IsDev() bool {
	if c == nil {
		return false
	}
	return c.AppEnv == "dev"
}

// Engine returns the engine config with the given name.
func (c *AppConfig) Engine(name string) (EngineConfig, bool) {
	if c == nil {
		return EngineConfig{}, false
	}
	for _, e := range c.Engines {
		if e.Name == name {
			return e, true
		}
	}
	return EngineConfig{}, false
}

type EngineConfig struct {
	Name            string        `yaml:"name"`
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Migrate applies the demo schema on startup.
	Migrate bool `yaml:"migrate"`
}

type ToolbarConfig struct {
	Enabled       bool          `yaml:"enabled" env:"QUERYPANEL_TOOLBAR_ENABLED"`
	Force         bool          `yaml:"force" env:"QUERYPANEL_TOOLBAR_FORCE"`
	MaxRequests   int           `yaml:"max_requests" env:"QUERYPANEL_TOOLBAR_MAX_REQUESTS" env-default:"100"`
	TTL           time.Duration `yaml:"ttl" env:"QUERYPANEL_TOOLBAR_TTL" env-default:"15m"`
	PruneSchedule string        `yaml:"prune_schedule" env:"QUERYPANEL_TOOLBAR_PRUNE_SCHEDULE" env-default:"@every 1m"`
	AllowedHosts  []string      `yaml:"allowed_hosts" env:"QUERYPANEL_TOOLBAR_ALLOWED_HOSTS" env-separator:","`
}

type ObservabilityConfig struct {
	MetricsEnabled          bool   `yaml:"metrics_enabled" env:"QUERYPANEL_METRICS_ENABLED"`
	MetricsToken            string `yaml:"metrics_token" env:"QUERYPANEL_METRICS_TOKEN"`
	MetricsAllowUnauthInDev bool   `yaml:"metrics_allow_unauth_in_dev" env:"QUERYPANEL_METRICS_ALLOW_UNAUTH_IN_DEV"`
}
