// Package config loads the process-wide configuration once at start-up.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file, then real environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"

	SecretsSourceEnv = "env"
	SecretsSourceAWS = "aws"

	// DevSessionSecret is only acceptable outside production.
	DevSessionSecret = "super-secret-jwt-key-change-this-in-production"

	defaultConfigFile = "coachconnect.yaml"
)

// Config is built once in main and handed to the components that need it.
type Config struct {
	Env      string         `yaml:"env"`
	Host     string         `yaml:"host"`
	Port     string         `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	Session  SessionConfig  `yaml:"session"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Secrets  SecretsConfig  `yaml:"secrets"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig selects where the enhanced PROFILE/TOKENS/WORKOUT records live.
// The legacy token table is always SQLite.
type StoreConfig struct {
	Backend        string `yaml:"backend"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

type SessionConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

type UpstreamConfig struct {
	AuthURL        string   `yaml:"auth_url"`
	TokenURL       string   `yaml:"token_url"`
	DeauthorizeURL string   `yaml:"deauthorize_url"`
	APIBaseURL     string   `yaml:"api_base_url"`
	Scopes         []string `yaml:"scopes"`
	Timeout        Duration `yaml:"timeout"`
}

type SecretsConfig struct {
	Source    string `yaml:"source"`
	AWSSecret string `yaml:"aws_secret_id"`
	AWSRegion string `yaml:"aws_region"`
}

// Duration accepts "30s" style strings in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Env:      EnvDevelopment,
		Host:     "127.0.0.1",
		Port:     "5050",
		LogLevel: "info",
		Database: DatabaseConfig{Path: "coachconnect.db"},
		Store: StoreConfig{
			Backend:        StoreBackendSQLite,
			RedisKeyPrefix: "coach:",
		},
		Session: SessionConfig{
			Secret:   DevSessionSecret,
			Issuer:   "strava-connect",
			Audience: "strava-app",
		},
		Upstream: UpstreamConfig{
			AuthURL:        "https://www.strava.com/oauth/authorize",
			TokenURL:       "https://www.strava.com/api/v3/oauth/token",
			DeauthorizeURL: "https://www.strava.com/oauth/deauthorize",
			APIBaseURL:     "https://www.strava.com/api/v3",
			Scopes:         []string{"read,activity:read_all"},
			Timeout:        Duration(30 * time.Second),
		},
		Secrets: SecretsConfig{
			Source:    SecretsSourceEnv,
			AWSSecret: "coach-connect-secrets",
		},
	}
}

// Load builds the configuration. An explicit path must exist; the default
// file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("COACH_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Env, "ENV")
	set(&c.Host, "HOST")
	set(&c.Port, "PORT")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.Database.Path, "DB_PATH")
	set(&c.Store.Backend, "STORE_BACKEND")
	set(&c.Store.RedisURL, "REDIS_URL")
	set(&c.Store.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	set(&c.Session.Secret, "JWT_SECRET")
	set(&c.Session.Issuer, "JWT_ISSUER")
	set(&c.Session.Audience, "JWT_AUDIENCE")
	set(&c.Upstream.AuthURL, "STRAVA_AUTH_URL")
	set(&c.Upstream.TokenURL, "STRAVA_TOKEN_URL")
	set(&c.Upstream.DeauthorizeURL, "STRAVA_DEAUTHORIZE_URL")
	set(&c.Upstream.APIBaseURL, "STRAVA_API_BASE_URL")
	set(&c.Secrets.Source, "SECRETS_SOURCE")
	set(&c.Secrets.AWSSecret, "AWS_SECRET_ID")
	set(&c.Secrets.AWSRegion, "AWS_REGION")

	if v := getenv("STRAVA_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Upstream.Timeout = Duration(time.Duration(secs) * time.Second)
		}
	}
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendSQLite:
	case StoreBackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Secrets.Source {
	case SecretsSourceEnv, SecretsSourceAWS:
	default:
		return fmt.Errorf("unknown secrets source %q", c.Secrets.Source)
	}

	if c.Session.Secret == "" {
		return errors.New("session secret must not be empty")
	}
	if c.IsProduction() && c.Session.Secret == DevSessionSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Session.Issuer == "" || c.Session.Audience == "" {
		return errors.New("session issuer and audience are required")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.Timeout)
}
