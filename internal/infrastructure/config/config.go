package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development staging production"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server   ServerConfig   `koanf:"server"`
	Redis    RedisConfig    `koanf:"redis"`
	Security SecurityConfig `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type RedisConfig struct {
	URL          string        `koanf:"url" validate:"required"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type SecurityConfig struct {
	JWTSecret string `koanf:"jwt_secret"`

	Scanner   ScannerConfig   `koanf:"scanner"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
}

type ScannerConfig struct {
	Enabled bool `koanf:"enabled"`
	Strict  bool `koanf:"strict"`
}

type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`

	// Per-address ceilings, one per window
	PerIPPerMinute int `koanf:"per_ip_per_minute" validate:"gt=0"`
	PerIPPerHour   int `koanf:"per_ip_per_hour" validate:"gt=0"`
	PerIPPerDay    int `koanf:"per_ip_per_day" validate:"gt=0"`

	// Per-user ceiling; kept configurable rather than hard-wired to a
	// multiple of the address ceiling
	PerUserPerMinute int `koanf:"per_user_per_minute" validate:"gt=0"`

	// Per-endpoint ceilings by sensitivity class
	AuthEndpointPerMinute    int `koanf:"auth_endpoint_per_minute" validate:"gt=0"`
	AdminEndpointPerMinute   int `koanf:"admin_endpoint_per_minute" validate:"gt=0"`
	BackupEndpointPerHour    int `koanf:"backup_endpoint_per_hour" validate:"gt=0"`
	GeneralEndpointPerMinute int `koanf:"general_endpoint_per_minute" validate:"gt=0"`

	// Violation accounting and blocking
	ViolationThreshold int           `koanf:"violation_threshold" validate:"gt=0"`
	ViolationPeriod    time.Duration `koanf:"violation_period"`
	BlockDuration      time.Duration `koanf:"block_duration"`

	// Additional trusted CIDR ranges beyond the built-in internal ones
	WhitelistCIDRs []string `koanf:"whitelist_cidrs"`
}

type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// Async toggles worker-pool dispatch; when false every Record call
	// writes synchronously
	Async        bool          `koanf:"async"`
	Workers      int           `koanf:"workers" validate:"gt=0"`
	QueueSize    int           `koanf:"queue_size" validate:"gt=0"`
	DrainTimeout time.Duration `koanf:"drain_timeout"`

	// Retention overrides by category name
	RetentionOverrides map[string]int `koanf:"retention_overrides"`
}

// Load reads defaults, an optional YAML file and BSEC_-prefixed environment
// variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("BSEC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BSEC_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Environment == "production" && c.Security.JWTSecret == "" {
		return fmt.Errorf("invalid configuration: security.jwt_secret is required in production")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Security: SecurityConfig{
			Scanner: ScannerConfig{
				Enabled: true,
			},
			RateLimit: RateLimitConfig{
				Enabled:        true,
				PerIPPerMinute: 60,
				PerIPPerHour:   1000,
				PerIPPerDay:    10000,
				// Twice the address ceiling; an authenticated user may
				// legitimately act from several addresses
				PerUserPerMinute:         120,
				AuthEndpointPerMinute:    10,
				AdminEndpointPerMinute:   30,
				BackupEndpointPerHour:    20,
				GeneralEndpointPerMinute: 60,
				ViolationThreshold:       5,
				ViolationPeriod:          time.Hour,
				BlockDuration:            15 * time.Minute,
			},
			Audit: AuditConfig{
				Enabled:      true,
				Async:        true,
				Workers:      4,
				QueueSize:    10000,
				DrainTimeout: 10 * time.Second,
			},
		},
	}
}
