package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "QUERYPANEL_"
	defaultEngineName = "primary"
	defaultSQLitePath = "data/querypanel.db"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.TrimSpace(v)
	}
	if v := getEnv("PORT", envPrefix+"PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DB_URL", envPrefix+"DB_URL"); v != "" {
		driver := getEnv("DB_DRIVER", envPrefix+"DB_DRIVER")
		setEngine(cfg, defaultEngineName, driver, v)
	}
	if v := getEnv(envPrefix + "ARCHIVE_DB_URL"); v != "" {
		driver := getEnv(envPrefix + "ARCHIVE_DB_DRIVER")
		setEngine(cfg, "archive", driver, v)
	}
}

// setEngine overrides the DSN (and driver, when given) of the named engine,
// adding it when the config file does not declare it.
func setEngine(cfg *AppConfig, name, driver, dsn string) {
	for i := range cfg.Engines {
		if cfg.Engines[i].Name != name {
			continue
		}
		cfg.Engines[i].DSN = strings.TrimSpace(dsn)
		if strings.TrimSpace(driver) != "" {
			cfg.Engines[i].Driver = driver
		}
		return
	}
	if strings.TrimSpace(driver) == "" {
		driver = guessDriver(dsn)
	}
	cfg.Engines = append(cfg.Engines, EngineConfig{Name: name, Driver: driver, DSN: strings.TrimSpace(dsn), Migrate: true})
}

func guessDriver(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return "postgres"
	}
	return "sqlite"
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Engines) == 0 {
		cfg.Engines = []EngineConfig{{Name: defaultEngineName, Driver: "sqlite", DSN: defaultSQLitePath, Migrate: true}}
	}
	for i := range cfg.Engines {
		e := &cfg.Engines[i]
		e.Name = strings.TrimSpace(e.Name)
		e.Driver = strings.ToLower(strings.TrimSpace(e.Driver))
		e.DSN = strings.TrimSpace(e.DSN)
		if e.Driver == "" {
			e.Driver = guessDriver(e.DSN)
		}
	}
	cfg.Toolbar.PruneSchedule = strings.TrimSpace(cfg.Toolbar.PruneSchedule)
	if cfg.Toolbar.MaxRequests <= 0 {
		cfg.Toolbar.MaxRequests = 100
	}
	hosts := cfg.Toolbar.AllowedHosts[:0]
	for _, h := range cfg.Toolbar.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	cfg.Toolbar.AllowedHosts = hosts
	cfg.Observability.MetricsToken = strings.TrimSpace(cfg.Observability.MetricsToken)
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func resolveConfigPath() string {
	if v := getEnv("APP_CONFIG", envPrefix+"APP_CONFIG"); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func listenAddrWithPort(currentAddr, portRaw string) string {
	port := strings.TrimSpace(portRaw)
	if port == "" {
		return currentAddr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return currentAddr
	}
	host := "0.0.0.0"
	parts := strings.Split(strings.TrimSpace(currentAddr), ":")
	if len(parts) > 1 {
		host = strings.Join(parts[:len(parts)-1], ":")
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + port
}
