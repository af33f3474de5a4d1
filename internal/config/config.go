package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Store backends.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Store   Store   `yaml:"store"`
	Jobs    Jobs    `yaml:"jobs"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
}

type Store struct {
	Backend        string        `yaml:"backend"`
	SupabaseURL    string        `yaml:"supabase_url"`
	SupabaseURLEnv string        `yaml:"supabase_url_env"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	PostgresDSNEnv string        `yaml:"postgres_dsn_env"`
	SQLitePath     string        `yaml:"sqlite_path"`
	Timeout        time.Duration `yaml:"timeout"`
	Retry          Retry         `yaml:"retry"`
}

type Retry struct {
	Attempts int           `yaml:"attempts"`
	Min      time.Duration `yaml:"min"`
	Max      time.Duration `yaml:"max"`
}

type Jobs struct {
	Procedure  string `yaml:"procedure"`
	HourlyCron string `yaml:"hourly_cron"`
	DailyCron  string `yaml:"daily_cron"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Metrics struct {
	Job            string `yaml:"job"`
	Textfile       string `yaml:"textfile"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// ConfigDir returns the XDG config directory for pulso.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "pulso")
}

// DataDir returns the XDG data directory for pulso.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "pulso")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/pulso/config.yaml > ./config.yaml.
// With no file found, an empty path means "use defaults and environment".
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			Backend:        BackendREST,
			SupabaseURLEnv: "SUPABASE_URL",
			APIKeyEnv:      "SUPABASE_SERVICE_KEY",
			PostgresDSNEnv: "DATABASE_URL",
			Timeout:        30 * time.Second,
			Retry: Retry{
				Attempts: 1,
				Min:      500 * time.Millisecond,
				Max:      10 * time.Second,
			},
		},
		Jobs: Jobs{
			Procedure:  "aggregate_daily_metrics",
			HourlyCron: "5 * * * *",
			DailyCron:  "15 0 * * *",
		},
		Logging: Logging{Level: "INFO"},
		Metrics: Metrics{Job: "pulso"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendREST, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}
	if c.Store.Retry.Attempts < 1 {
		return fmt.Errorf("store.retry.attempts must be at least 1")
	}
	return nil
}

// GetSupabaseURL returns the explicit URL or the one from the environment.
func (c *Config) GetSupabaseURL() string {
	if c.Store.SupabaseURL != "" {
		return c.Store.SupabaseURL
	}
	return os.Getenv(c.Store.SupabaseURLEnv)
}

// GetAPIKey returns the service key from the configured environment variable.
func (c *Config) GetAPIKey() string {
	return os.Getenv(c.Store.APIKeyEnv)
}

// GetPostgresDSN returns the DSN from the configured environment variable.
func (c *Config) GetPostgresDSN() string {
	return os.Getenv(c.Store.PostgresDSNEnv)
}

// GetSQLitePath returns the effective local database path.
func (c *Config) GetSQLitePath() string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(DataDir(), "pulso.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
