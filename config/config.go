// Package config loads and validates CLI config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token store backends.
const (
	StoreBBolt    = "bbolt"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// DefaultAPIURL is the API root of a locally running backend.
const DefaultAPIURL = "http://127.0.0.1:8000/api/"

// Config holds CLI configuration loaded from the environment.
type Config struct {
	// APIURL is the API root every request path is resolved against.
	APIURL string `mapstructure:"OCCASIO_API_URL"`
	// Profile names the set of stored tokens to use, so several accounts can be kept side by side.
	Profile string `mapstructure:"OCCASIO_PROFILE"`
	// TokenStore is one of bbolt, memory or postgres.
	TokenStore string `mapstructure:"OCCASIO_TOKEN_STORE"`
	// DataDir holds the bbolt token file. Defaults to the user config dir.
	DataDir string `mapstructure:"OCCASIO_DATA_DIR"`
	// DatabaseURL is the Postgres DSN; required when TokenStore is postgres.
	DatabaseURL string `mapstructure:"OCCASIO_DATABASE_URL"`
	// StorePassphrase, when set, encrypts stored token values at rest.
	StorePassphrase string `mapstructure:"OCCASIO_STORE_PASSPHRASE"`
	// RefreshInterval is the period of the background refresh sweep. Zero disables it.
	RefreshInterval time.Duration `mapstructure:"OCCASIO_REFRESH_INTERVAL"`
	// HTTPTimeout bounds each HTTP request. Zero means no timeout.
	HTTPTimeout time.Duration `mapstructure:"OCCASIO_HTTP_TIMEOUT"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"OCCASIO_LOG_LEVEL"`
	// Output is the default rendering for command results: table, json or yaml.
	Output string `mapstructure:"OCCASIO_OUTPUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	}

	v.AutomaticEnv()

	v.SetDefault("OCCASIO_API_URL", DefaultAPIURL)
	v.SetDefault("OCCASIO_PROFILE", "default")
	v.SetDefault("OCCASIO_TOKEN_STORE", StoreBBolt)
	v.SetDefault("OCCASIO_DATA_DIR", "")
	v.SetDefault("OCCASIO_DATABASE_URL", "")
	v.SetDefault("OCCASIO_STORE_PASSPHRASE", "")
	v.SetDefault("OCCASIO_REFRESH_INTERVAL", "10m")
	v.SetDefault("OCCASIO_HTTP_TIMEOUT", "0s")
	v.SetDefault("OCCASIO_LOG_LEVEL", "info")
	v.SetDefault("OCCASIO_OUTPUT", OutputTable)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("config: OCCASIO_API_URL must be set")
	}
	if c.Profile == "" {
		return errors.New("config: OCCASIO_PROFILE must not be empty")
	}

	c.TokenStore = strings.ToLower(c.TokenStore)
	switch c.TokenStore {
	case StoreBBolt, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: OCCASIO_DATABASE_URL must be set when OCCASIO_TOKEN_STORE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown OCCASIO_TOKEN_STORE %q", c.TokenStore)
	}

	if c.RefreshInterval < 0 {
		return errors.New("config: OCCASIO_REFRESH_INTERVAL must not be negative")
	}
	if c.HTTPTimeout < 0 {
		return errors.New("config: OCCASIO_HTTP_TIMEOUT must not be negative")
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("config: invalid OCCASIO_LOG_LEVEL %q", c.LogLevel)
	}

	c.Output = strings.ToLower(c.Output)
	if err := ValidateOutput(c.Output); err != nil {
		return err
	}
	return nil
}

// ValidateOutput reports whether format is a supported output format.
func ValidateOutput(format string) error {
	switch format {
	case OutputTable, OutputJSON, OutputYAML:
		return nil
	}
	return fmt.Errorf("config: unknown output format %q (want table, json or yaml)", format)
}

// Level returns LogLevel as a slog.Level. Returns info if unset or invalid.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// TokenFile is the path of the bbolt token database.
func (c *Config) TokenFile() string {
	return filepath.Join(c.DataDir, "tokens.db")
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".occasio"
	}
	return filepath.Join(dir, "occasio")
}
