package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Notify.Queue != QueueMemory || cfg.Notify.MaxAttempts != 3 {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.DB.MaxConnLifetime != 30*time.Minute {
		t.Errorf("max conn lifetime = %s", cfg.DB.MaxConnLifetime)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka should be disabled by default")
	}
	if cfg.SMTP.Enabled() {
		t.Error("smtp should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", " Memory ")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("NOTIFY_QUEUE", "redis")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("UPLOAD_BASE_URL", "https://cdn.example.com/posters/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriver != StorageMemory {
		t.Errorf("storage driver = %q", cfg.StorageDriver)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Upload.BaseURL != "https://cdn.example.com/posters" {
		t.Errorf("base url = %q", cfg.Upload.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"unknown storage", func(c *Config) { c.StorageDriver = "mongo" }},
		{"unknown queue", func(c *Config) { c.Notify.Queue = "sqs" }},
		{"no workers", func(c *Config) { c.Notify.Workers = 0 }},
		{"tiny qr", func(c *Config) { c.Ticket.ImageSize = 10 }},
		{"default secret in production", func(c *Config) { c.Env = "production" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func validConfig() *Config {
	return &Config{
		Env:           "development",
		StorageDriver: StorageMemory,
		HTTP:          HTTPConfig{Port: 8080},
		Auth:          AuthConfig{JWTSecret: "dev-secret-change-me"},
		Ticket:        TicketConfig{ImageSize: 256},
		Notify: NotifyConfig{
			Queue:               QueueMemory,
			Workers:             1,
			MaxAttempts:         1,
			ReminderConcurrency: 1,
		},
	}
}
