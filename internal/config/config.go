// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	QueueMemory = "memory"
	QueueRedis  = "redis"
)

type Config struct {
	Env           string          `env:"ENV" envDefault:"development"`
	StorageDriver string          `env:"STORAGE_DRIVER" envDefault:"postgres"`
	HTTP          HTTPConfig      `envPrefix:"HTTP_"`
	DB            DatabaseConfig  `envPrefix:"DB_"`
	Log           LogConfig       `envPrefix:"LOG_"`
	Auth          AuthConfig      `envPrefix:"AUTH_"`
	SMTP          SMTPConfig      `envPrefix:"SMTP_"`
	Ticket        TicketConfig    `envPrefix:"TICKET_"`
	Notify        NotifyConfig    `envPrefix:"NOTIFY_"`
	Redis         RedisConfig     `envPrefix:"REDIS_"`
	Kafka         KafkaConfig     `envPrefix:"KAFKA_"`
	Upload        UploadConfig    `envPrefix:"UPLOAD_"`
	Telemetry     TelemetryConfig `envPrefix:"OTEL_"`
}

type HTTPConfig struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	CORSOrigin   string        `env:"CORS_ORIGIN" envDefault:"*"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"postgres"`
	Password        string        `env:"PASSWORD" envDefault:"postgres"`
	Name            string        `env:"NAME" envDefault:"campus_events"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
	ConnectAttempts int           `env:"CONNECT_ATTEMPTS" envDefault:"5"`
	Migrate         bool          `env:"MIGRATE" envDefault:"true"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type LogConfig struct {
	Level    string `env:"LEVEL" envDefault:"info"`
	Mode     string `env:"MODE" envDefault:"development"`
	Encoding string `env:"ENCODING" envDefault:"console"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	Issuer    string `env:"ISSUER"`
}

// SMTPConfig configures the mail transport. Without a user and password the
// service logs messages instead of sending them.
type SMTPConfig struct {
	Host     string        `env:"HOST" envDefault:"localhost"`
	Port     int           `env:"PORT" envDefault:"587"`
	User     string        `env:"USER"`
	Password string        `env:"PASS"`
	From     string        `env:"FROM" envDefault:"Campus Events <no-reply@campus-events.local>"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether credentials for a real transport are present.
func (c SMTPConfig) Enabled() bool {
	return c.User != "" && c.Password != ""
}

type TicketConfig struct {
	ImageSize int    `env:"IMAGE_SIZE" envDefault:"256"`
	Recovery  string `env:"RECOVERY" envDefault:"medium"`
}

type NotifyConfig struct {
	Queue               string        `env:"QUEUE" envDefault:"memory"`
	QueueKey            string        `env:"QUEUE_KEY" envDefault:"campus-events:notifications"`
	QueueBuffer         int           `env:"QUEUE_BUFFER" envDefault:"1024"`
	Workers             int           `env:"WORKERS" envDefault:"2"`
	MaxAttempts         int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	RetryMaxDelay       time.Duration `env:"RETRY_MAX_DELAY" envDefault:"1m"`
	ReminderConcurrency int           `env:"REMINDER_CONCURRENCY" envDefault:"8"`
}

type RedisConfig struct {
	Addr         string `env:"ADDR" envDefault:"localhost:6379"`
	Password     string `env:"PASSWORD"`
	DB           int    `env:"DB" envDefault:"0"`
	MaxRetries   int    `env:"MAX_RETRIES" envDefault:"3"`
	PoolSize     int    `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int    `env:"MIN_IDLE_CONNS" envDefault:"2"`
}

type KafkaConfig struct {
	Enabled              bool     `env:"ENABLED" envDefault:"false"`
	Brokers              []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	ProducerRetryMax     int      `env:"PRODUCER_RETRY_MAX" envDefault:"3"`
	ProducerRequiredAcks int      `env:"PRODUCER_REQUIRED_ACKS" envDefault:"1"`
	ClientID             string   `env:"CLIENT_ID" envDefault:"campus-events"`
}

type UploadConfig struct {
	Dir      string `env:"DIR" envDefault:"./uploads"`
	BaseURL  string `env:"BASE_URL" envDefault:"/uploads"`
	MaxBytes int64  `env:"MAX_BYTES" envDefault:"5242880"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"true"`
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"campus-events"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.Notify.Queue = strings.ToLower(strings.TrimSpace(c.Notify.Queue))
	c.Upload.BaseURL = strings.TrimRight(c.Upload.BaseURL, "/")
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}

	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	switch c.Notify.Queue {
	case QueueMemory:
	case QueueRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis queue")
		}
	default:
		return fmt.Errorf("unknown notification queue %q", c.Notify.Queue)
	}

	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify workers must be at least 1")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify max attempts must be at least 1")
	}
	if c.Notify.ReminderConcurrency < 1 {
		return fmt.Errorf("reminder concurrency must be at least 1")
	}

	if c.Ticket.ImageSize < 64 {
		return fmt.Errorf("ticket image size must be at least 64 pixels")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if c.Telemetry.Endpoint != "" {
		if _, err := url.Parse(c.Telemetry.Endpoint); err != nil {
			return fmt.Errorf("invalid otel endpoint: %w", err)
		}
	}

	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "dev-secret-change-me" {
		if c.Env == "production" {
			return fmt.Errorf("AUTH_JWT_SECRET must be set in production")
		}
	}

	return nil
}
