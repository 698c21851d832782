package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Export    ExportConfig    `koanf:"export"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Security  SecurityConfig  `koanf:"security"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	DPO       DPOConfig       `koanf:"dpo"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type ExportConfig struct {
	Dir string `koanf:"dir"`
}

type WebhookConfig struct {
	// DeliveriesPerSecond caps outbound POST rate across all subscriptions.
	DeliveriesPerSecond int `koanf:"deliveries_per_second"`
	DeliveryBurst       int `koanf:"delivery_burst"`
}

type SecurityConfig struct {
	JWTSecret   string        `koanf:"jwt_secret"`
	TokenExpiry time.Duration `koanf:"token_expiry"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerMinute int  `koanf:"requests_per_minute"`
}

type TelemetryConfig struct {
	Enabled      bool          `koanf:"enabled"`
	OTLPEndpoint string        `koanf:"otlp_endpoint"`
	SamplingRate float64       `koanf:"sampling_rate"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

type DPOConfig struct {
	Email string `koanf:"email"`
}

func Load(path string) (*Config, error) {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "privacy@controller.local",
		},
		Export: ExportConfig{
			Dir: "/exports",
		},
		Webhook: WebhookConfig{
			DeliveriesPerSecond: 50,
			DeliveryBurst:       100,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
			BatchTimeout: 5 * time.Second,
		},
		DPO: DPOConfig{
			Email: "dpo@controller.local",
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional.
	_ = k.Load(file.Provider(path), yaml.Parser())

	// Double underscore separates nesting levels so snake_case keys survive:
	// GDPR_SECURITY__JWT_SECRET -> security.jwt_secret.
	if err := k.Load(env.Provider("GDPR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "GDPR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
