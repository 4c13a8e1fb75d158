// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Supabase SupabaseConfig `koanf:"supabase"`
	Reco     RecoConfig     `koanf:"reco"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port              int           `koanf:"port"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`
}

type SupabaseConfig struct {
	URL            string `koanf:"url"`
	AnonKey        string `koanf:"anon_key"`
	ServiceRoleKey string `koanf:"service_role_key"`
	JWTSecret      string `koanf:"jwt_secret"`
}

type RecoConfig struct {
	// BaseURL may be empty at startup; requests then fail with a 500.
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              3001,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Reco: RecoConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envKeys maps the environment variables the service has always used onto koanf paths.
var envKeys = map[string]string{
	"PORT":                      "server.port",
	"CORS_ORIGINS":              "server.cors_origins",
	"RATE_LIMIT_REQUESTS":       "server.rate_limit_requests",
	"RATE_LIMIT_WINDOW":         "server.rate_limit_window",
	"DATABASE_URL":              "database.url",
	"MIGRATE_ON_START":          "database.migrate_on_start",
	"SUPABASE_URL":              "supabase.url",
	"SUPABASE_ANON_KEY":         "supabase.anon_key",
	"SUPABASE_SERVICE_ROLE_KEY": "supabase.service_role_key",
	"SUPABASE_JWT_SECRET":       "supabase.jwt_secret",
	"RECO_BASE_URL":             "reco.base_url",
	"RECO_TIMEOUT":              "reco.timeout",
	"LOG_LEVEL":                 "logging.level",
	"LOG_FORMAT":                "logging.format",
}

var sliceConfigPaths = []string{"server.cors_origins"}

// Load reads .env (if present), then layers defaults, config file and environment.
func Load() (*Config, error) {
	// .env is optional, for local dev
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Database.URL = normalizeDatabaseURL(cfg.Database.URL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc returns "" for variables the service does not read, which koanf skips.
func envTransformFunc(key string) string {
	return envKeys[key]
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// normalizeDatabaseURL rewrites the SQLAlchemy scheme some deployments share with the batch jobs.
func normalizeDatabaseURL(u string) string {
	const sqlalchemy = "postgresql+psycopg:"
	if strings.HasPrefix(u, sqlalchemy) {
		return "postgres:" + strings.TrimPrefix(u, sqlalchemy)
	}
	return u
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Supabase.JWTSecret == "" && (c.Supabase.URL == "" || c.Supabase.AnonKey == "") {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required unless SUPABASE_JWT_SECRET is set"))
	}
	if c.Server.RateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must not be negative"))
	}
	return errors.Join(errs...)
}
