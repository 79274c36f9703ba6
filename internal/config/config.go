// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings consumed by the ingestion pipeline and its commands.
type Config struct {
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SecretKey   string `mapstructure:"SECRET_KEY"`

	LWAClientID     string `mapstructure:"LWA_CLIENT_ID"`
	LWAClientSecret string `mapstructure:"LWA_CLIENT_SECRET"`
	LWATokenURL     string `mapstructure:"LWA_TOKEN_URL"`

	Region       string `mapstructure:"SP_REGION"`
	AWSAccessKey string `mapstructure:"AWS_ACCESS_KEY"`
	AWSSecretKey string `mapstructure:"AWS_SECRET_KEY"`
	NoAWSMode    bool   `mapstructure:"NO_AWS_MODE"`

	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	PollTimeout     time.Duration `mapstructure:"POLL_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DownloadTimeout time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	TokenTimeout    time.Duration `mapstructure:"TOKEN_TIMEOUT"`

	SyncSchedule     string `mapstructure:"SYNC_SCHEDULE"`
	ReportWindowDays int    `mapstructure:"REPORT_WINDOW_DAYS"`
	OrderWindowDays  int    `mapstructure:"ORDER_WINDOW_DAYS"`
	MaxOrders        int    `mapstructure:"MAX_ORDERS"`

	GRPCAddr string `mapstructure:"GRPC_ADDR"`
}

var defaults = map[string]any{
	"ENV":                "prod",
	"LWA_TOKEN_URL":      "https://api.amazon.com/auth/o2/token",
	"SP_REGION":          "eu",
	"NO_AWS_MODE":        false,
	"POLL_INTERVAL":      3 * time.Second,
	"POLL_TIMEOUT":       180 * time.Second,
	"REQUEST_TIMEOUT":    60 * time.Second,
	"DOWNLOAD_TIMEOUT":   120 * time.Second,
	"TOKEN_TIMEOUT":      30 * time.Second,
	"SYNC_SCHEDULE":      "0 3 * * *",
	"REPORT_WINDOW_DAYS": 30,
	"ORDER_WINDOW_DAYS":  7,
	"MAX_ORDERS":         100,
	"GRPC_ADDR":          ":8090",
}

var keys = []string{
	"ENV", "DATABASE_URL", "SECRET_KEY",
	"LWA_CLIENT_ID", "LWA_CLIENT_SECRET", "LWA_TOKEN_URL",
	"SP_REGION", "AWS_ACCESS_KEY", "AWS_SECRET_KEY", "NO_AWS_MODE",
	"POLL_INTERVAL", "POLL_TIMEOUT", "REQUEST_TIMEOUT", "DOWNLOAD_TIMEOUT", "TOKEN_TIMEOUT",
	"SYNC_SCHEDULE", "REPORT_WINDOW_DAYS", "ORDER_WINDOW_DAYS", "MAX_ORDERS",
	"GRPC_ADDR",
}

// Load reads .env files (missing files are ignored) and then the environment.
// Variables already present in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Region = strings.ToLower(strings.TrimSpace(cfg.Region))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that the pipeline relies on.
func (c *Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.SecretKey) == "" {
		problems = append(problems, errors.New("SECRET_KEY is required"))
	}
	switch c.Region {
	case "eu", "na", "fe":
	default:
		problems = append(problems, fmt.Errorf("SP_REGION %q is not one of eu, na, fe", c.Region))
	}
	if c.PollInterval <= 0 {
		problems = append(problems, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.PollTimeout < c.PollInterval {
		problems = append(problems, errors.New("POLL_TIMEOUT must not be shorter than POLL_INTERVAL"))
	}
	if c.RequestTimeout <= 0 || c.DownloadTimeout <= 0 || c.TokenTimeout <= 0 {
		problems = append(problems, errors.New("REQUEST_TIMEOUT, DOWNLOAD_TIMEOUT and TOKEN_TIMEOUT must be positive"))
	}
	if c.ReportWindowDays <= 0 || c.OrderWindowDays <= 0 {
		problems = append(problems, errors.New("REPORT_WINDOW_DAYS and ORDER_WINDOW_DAYS must be positive"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %w", errors.Join(problems...))
	}
	return nil
}

// SigningEnabled reports whether outbound requests get an AWS SigV4 signature.
func (c *Config) SigningEnabled() bool {
	return !c.NoAWSMode && c.AWSAccessKey != "" && c.AWSSecretKey != ""
}

// Dev reports whether verbose development logging is wanted.
func (c *Config) Dev() bool { return c.Env == "dev" }
