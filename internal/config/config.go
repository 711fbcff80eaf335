package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the panel backend configuration, read from the environment and
// an optional .env file.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     string `envconfig:"PORT" default:"3000"`

	SDAPIURL       string        `envconfig:"SD_API_URL" default:"http://localhost:7860"`
	SDAPITimeout   time.Duration `envconfig:"SD_API_TIMEOUT" default:"5m"`
	SDProbeTimeout time.Duration `envconfig:"SD_PROBE_TIMEOUT" default:"5s"`

	UploadsDir    string `envconfig:"UPLOADS_DIR" default:"uploads"`
	GeneratedDir  string `envconfig:"GENERATED_DIR" default:"generated"`
	StaticDir     string `envconfig:"STATIC_DIR" default:"client/build"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	MaxBodyBytes       int64    `envconfig:"MAX_BODY_BYTES" default:"52428800"`

	HTTPReadTimeout time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"1m"`
	HTTPIdleTimeout time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"2m"`
}

// Load reads .env (if present) without overriding variables already set,
// then processes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.SDAPIURL) == "" {
		return fmt.Errorf("SD_API_URL is required")
	}
	if strings.TrimSpace(cfg.GeneratedDir) == "" {
		return fmt.Errorf("GENERATED_DIR is required")
	}
	if cfg.SDAPITimeout <= 0 || cfg.SDProbeTimeout <= 0 {
		return fmt.Errorf("SD_API_TIMEOUT and SD_PROBE_TIMEOUT must be positive")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	return nil
}

// HTTPWriteTimeout leaves room for the probe and a full-length generation.
func (cfg *Config) HTTPWriteTimeout() time.Duration {
	return cfg.SDProbeTimeout + cfg.SDAPITimeout + 30*time.Second
}

// ImageURLPrefix is the public prefix of generated image URLs.
func (cfg *Config) ImageURLPrefix() string {
	return strings.TrimRight(cfg.PublicBaseURL, "/") + "/generated"
}

func (cfg *Config) Addr() string {
	return ":" + cfg.Port
}
