// Package config loads the dispatcher service configuration: a YAML file,
// then DISPATCH_* environment overrides, then struct validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "DISPATCH_"

// Config is the top-level service configuration
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Reports   ReportsConfig   `yaml:"reports" envPrefix:"REPORTS_"`
	Sender    SenderConfig    `yaml:"sender" envPrefix:"SENDER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

type SchedulerConfig struct {
	WindowPollInterval   time.Duration `yaml:"window_poll_interval" env:"WINDOW_POLL_INTERVAL" validate:"min=1s"`
	AvgProcessingSeconds float64       `yaml:"avg_processing_seconds" env:"AVG_PROCESSING_SECONDS" validate:"gte=0"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" env:"ADDR" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type ReportsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR" validate:"required_if=Enabled true"`
}

type SenderConfig struct {
	Kind       string        `yaml:"kind" env:"KIND" validate:"oneof=log webhook"`
	WebhookURL string        `yaml:"webhook_url" env:"WEBHOOK_URL" validate:"required_if=Kind webhook,omitempty,url"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"min=0"`

	// MaxPerSecond caps webhook deliveries across all campaigns; 0 is unlimited
	MaxPerSecond float64 `yaml:"max_per_second" env:"MAX_PER_SECOND" validate:"gte=0"`
	Burst        int     `yaml:"burst" env:"BURST" validate:"gte=0"`
}

// LogConfig drives internal/logging
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" env:"FORMAT" validate:"oneof=console json"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS" validate:"gte=0"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			WindowPollInterval:   time.Minute,
			AvgProcessingSeconds: 2,
		},
		Server:  ServerConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true},
		Reports: ReportsConfig{Enabled: false, Dir: "./reports"},
		Sender:  SenderConfig{Kind: "log", Timeout: 10 * time.Second},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
