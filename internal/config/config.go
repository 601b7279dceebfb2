package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	TokenTTL       time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	// Order pipeline policy.
	DeliveryFee           float64 `mapstructure:"DELIVERY_FEE"`
	FreeDeliveryThreshold float64 `mapstructure:"FREE_DELIVERY_THRESHOLD"`
	OrderStatusPolicy     string  `mapstructure:"ORDER_STATUS_POLICY"`

	// Signaling relay.
	RoomCapacity int `mapstructure:"ROOM_CAPACITY"`

	// Optional event sinks and object storage.
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL  string   `mapstructure:"SQS_QUEUE_URL"`
	S3Bucket     string   `mapstructure:"S3_BUCKET"`
	S3Endpoint   string   `mapstructure:"S3_ENDPOINT"`
	AWSRegion    string   `mapstructure:"AWS_REGION"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"JWT_SECRET", "TOKEN_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"DELIVERY_FEE", "FREE_DELIVERY_THRESHOLD", "ORDER_STATUS_POLICY", "ROOM_CAPACITY",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE_URL", "S3_BUCKET", "S3_ENDPOINT",
	"AWS_REGION", "GEMINI_API_KEY", "GEMINI_MODEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("DELIVERY_FEE", 50)
	v.SetDefault("FREE_DELIVERY_THRESHOLD", 500)
	v.SetDefault("ORDER_STATUS_POLICY", "strict")
	v.SetDefault("ROOM_CAPACITY", 2)
	v.SetDefault("KAFKA_TOPIC", "telemed.events")
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")

	// Bind explicitly so Unmarshal sees env-only values.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// List values arrive as comma-separated env strings.
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.KafkaBrokers = splitList(strings.Join(cfg.KafkaBrokers, ","))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.DeliveryFee < 0 {
		return fmt.Errorf("DELIVERY_FEE must not be negative, got %v", c.DeliveryFee)
	}
	if c.FreeDeliveryThreshold < 0 {
		return fmt.Errorf("FREE_DELIVERY_THRESHOLD must not be negative, got %v", c.FreeDeliveryThreshold)
	}
	switch c.OrderStatusPolicy {
	case "strict", "free":
	default:
		return fmt.Errorf("ORDER_STATUS_POLICY must be \"strict\" or \"free\", got %q", c.OrderStatusPolicy)
	}
	if c.RoomCapacity < 0 {
		return fmt.Errorf("ROOM_CAPACITY must not be negative, got %d", c.RoomCapacity)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Secret returns the token signing secret, with a fixed fallback in development.
func (c *Config) Secret() string {
	if c.JWTSecret == "" && c.IsDev() {
		return "dev-secret-do-not-use"
	}
	return c.JWTSecret
}
