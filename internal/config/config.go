// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"RELAY_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"RELAY_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"RELAY_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RELAY_SERVER_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"RELAY_SERVER_MAX_BODY_BYTES"`
	DisableHealth   bool          `yaml:"disable_health" env:"RELAY_SERVER_DISABLE_HEALTH"` // turns GET into 405
}

type CORSConfig struct {
	AllowOrigin  string   `yaml:"allow_origin" env:"RELAY_CORS_ALLOW_ORIGIN"`
	AllowMethods []string `yaml:"allow_methods" env:"RELAY_CORS_ALLOW_METHODS" env-separator:","`
	AllowHeaders []string `yaml:"allow_headers" env:"RELAY_CORS_ALLOW_HEADERS" env-separator:","`
	MaxAge       int      `yaml:"max_age" env:"RELAY_CORS_MAX_AGE"` // seconds; <0 omits the header
}

type TelegramConfig struct {
	BaseURL string        `yaml:"base_url" env:"RELAY_TELEGRAM_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"RELAY_TELEGRAM_TIMEOUT"`
	DryRun  bool          `yaml:"dry_run" env:"RELAY_TELEGRAM_DRY_RUN"` // log instead of calling Telegram
}

type LogConfig struct {
	Level    string `yaml:"level" env:"RELAY_LOG_LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"RELAY_LOG_FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"RELAY_LOG_SAMPLING"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port" env:"RELAY_ADMIN_PORT"` // negative disables the admin listener
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	CORS     CORSConfig     `yaml:"cors"`
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

const (
	DefaultPort         = 8080
	DefaultAdminPort    = 9090
	DefaultMaxBodyBytes = 4_500_000
	DefaultCORSMaxAge   = 86400
	DefaultTelegramURL  = "https://api.telegram.org"
)

// LoadConfig reads the YAML file at path, then the optional dotenv file, then
// RELAY_* environment variables, in increasing order of precedence.
// A missing YAML file is not an error: every setting has a default.
func LoadConfig(path, envFile string, dev bool) (*Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.CORS.AllowOrigin == "" {
		cfg.CORS.AllowOrigin = "*"
	}
	if len(cfg.CORS.AllowMethods) == 0 {
		cfg.CORS.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.CORS.AllowHeaders) == 0 {
		cfg.CORS.AllowHeaders = []string{"Content-Type", "Authorization", "X-Requested-With"}
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = DefaultCORSMaxAge
	}

	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = DefaultAdminPort
	}

	if cfg.Telegram.BaseURL == "" {
		cfg.Telegram.BaseURL = DefaultTelegramURL
	}
	cfg.Telegram.BaseURL = strings.TrimRight(cfg.Telegram.BaseURL, "/")
	if cfg.Telegram.Timeout <= 0 {
		cfg.Telegram.Timeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port out of range: %d", c.Admin.Port)
	}
	if c.Admin.Port == c.Server.Port {
		return errors.New("admin.port must differ from server.port")
	}
	u, err := url.Parse(c.Telegram.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("telegram.base_url is not an absolute url: %q", c.Telegram.BaseURL)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// AdminEnabled reports whether the metrics listener should be started.
func (c *Config) AdminEnabled() bool { return c.Admin.Port > 0 }
