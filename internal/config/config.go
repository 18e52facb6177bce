package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	// Client settings used by the CLI.
	SoftbaseURL    string `mapstructure:"softbase_url"`
	SoftbaseAPIKey string `mapstructure:"softbase_api_key"`

	// Sandbox backend settings.
	SandboxAddr            string        `mapstructure:"sandbox_addr"`
	SandboxAPIKey          string        `mapstructure:"sandbox_api_key"`
	PublishersFile         string        `mapstructure:"publishers_file"`
	CORSAllowedOriginsRaw  string        `mapstructure:"cors_allowed_origins"`
	CORSAllowedOrigins     []string      `mapstructure:"-"`
	RateLimitRPS           float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst         int           `mapstructure:"rate_limit_burst"`
	ShutdownTimeoutSeconds int64         `mapstructure:"shutdown_timeout_seconds"`
	ShutdownTimeout        time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "softbase")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("softbase_url", "http://127.0.0.1:1440")
	v.SetDefault("softbase_api_key", "")
	v.SetDefault("sandbox_addr", ":1440")
	v.SetDefault("sandbox_api_key", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("shutdown_timeout_seconds", 10)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/softbase.db")
	v.SetDefault("storage_ttl_seconds", 0) // records never expire
	v.SetDefault("storage_cleanup_interval_seconds", int64(time.Hour/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.StorageTTLSeconds < 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be zero or positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return nil, fmt.Errorf("invalid rate limit (rps and burst must not be negative)")
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid shutdown_timeout_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOriginsRaw)

	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
