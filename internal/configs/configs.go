/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings are layered: built-in defaults, then an optional YAML file (environment variables
inside it are expanded), then an optional .env file, then HOLIDAZE_* environment variables.
The result is validated before it is handed to the rest of the application.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers understood by kv.Open.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Settings
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`

	// Companion Server Settings
	// The server acts as the signed-in user: Host defaults to loopback.
	Host           string   `yaml:"host" env:"HOST"`
	Port           int      `yaml:"port" env:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`

	API     APIConfig     `yaml:"api" envPrefix:"API_"`
	Store   StoreConfig   `yaml:"store" envPrefix:"STORE_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"S3_"`
}

// APIConfig configures the remote booking API gateway.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	ResourcePrefix string        `yaml:"resource_prefix" env:"RESOURCE_PREFIX"`
	Key            string        `yaml:"key" env:"KEY"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RatePerSecond  float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	Burst          int           `yaml:"burst" env:"BURST"`
}

// StoreConfig selects and configures the persistent key-value store.
type StoreConfig struct {
	Driver       string        `yaml:"driver" env:"DRIVER"`
	Path         string        `yaml:"path" env:"PATH"`
	Passphrase   string        `yaml:"passphrase" env:"PASSPHRASE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	DatabaseURL  string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL     string        `yaml:"redis_url" env:"REDIS_URL"`
}

// StorageConfig configures S3-compatible object storage for avatar and banner uploads.
// Uploads are disabled when Bucket is empty.
type StorageConfig struct {
	Bucket          string `yaml:"bucket" env:"BUCKET_NAME"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	Region          string `yaml:"region" env:"REGION"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	PublicBaseURL   string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
}

// Defaults returns the built-in configuration.
func Defaults() *AppConfig {
	return &AppConfig{
		Environment:    "development",
		LogLevel:       "",
		Host:           "127.0.0.1",
		Port:           8080,
		AllowedOrigins: []string{},
		API: APIConfig{
			BaseURL:        "https://v2.api.noroff.dev",
			ResourcePrefix: "/holidaze",
			Timeout:        15 * time.Second,
			RatePerSecond:  5,
			Burst:          10,
		},
		Store: StoreConfig{
			Driver:       StoreFile,
			Path:         defaultStorePath(),
			PollInterval: time.Second,
		},
		Storage: StorageConfig{
			Region: "auto",
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "holidaze", "store.json")
}

// LoadConfig reads the configuration, starting from Defaults and applying the YAML file at
// path (optional), a .env file in the working directory (optional) and the environment.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "HOLIDAZE_"}); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for inconsistent or missing values.
func (c *AppConfig) Validate() error {
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", c.Port, 1024, 65535)
	}

	for _, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" {
			return fmt.Errorf("allowed origin %q must be a scheme and host such as http://localhost:5173", origin)
		}
	}

	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid api base_url %q: %w", c.API.BaseURL, err)
	}

	if c.API.ResourcePrefix != "" && !strings.HasPrefix(c.API.ResourcePrefix, "/") {
		return fmt.Errorf("api resource_prefix %q must start with '/'", c.API.ResourcePrefix)
	}

	if c.API.RatePerSecond < 0 || c.API.Burst < 0 {
		return fmt.Errorf("api rate limit values must not be negative")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the %s driver", StoreFile)
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store database_url is required for the %s driver", StorePostgres)
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store redis_url is required for the %s driver", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Storage.Enabled() && c.Storage.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required when a bucket is configured")
	}

	if c.IsProduction() && c.API.Key == "" {
		return fmt.Errorf("api key is required in %s environment", c.Environment)
	}

	return nil
}

// IsDevelopment reports whether the application runs in development mode.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the application runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Addr returns the companion server listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OriginAllowed reports whether a browser page served from origin may call the companion
// server. Only configured origins are trusted; development also trusts loopback pages.
func (c *AppConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(c.AllowedOrigins, origin) {
		return true
	}
	if !c.IsDevelopment() {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if u.Hostname() == "localhost" {
		return true
	}
	ip := net.ParseIP(u.Hostname())
	return ip != nil && ip.IsLoopback()
}

// Enabled reports whether object storage uploads are configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}
