package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Persistence.Backend != "file" || cfg.Persistence.DebounceInterval != 500*time.Millisecond {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}
	if cfg.Verification.DefaultThreshold != 15 {
		t.Errorf("default threshold = %v, want 15", cfg.Verification.DefaultThreshold)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("brokers = %v, want none", cfg.Kafka.Brokers)
	}
	if cfg.Persistence.Breaker.ConsecutiveFailures != 5 {
		t.Errorf("breaker = %+v", cfg.Persistence.Breaker)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VERIFICATION_SERVICE_PERSISTENCE_BACKEND", "redis")
	t.Setenv("VERIFICATION_SERVICE_PERSISTENCE_DEBOUNCE_INTERVAL", "2s")
	t.Setenv("VERIFICATION_SERVICE_VERIFICATION_DEFAULT_THRESHOLD", "20")
	t.Setenv("VERIFICATION_SERVICE_SECURITY_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Persistence.Backend != "redis" {
		t.Errorf("backend = %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.DebounceInterval != 2*time.Second {
		t.Errorf("debounce = %v", cfg.Persistence.DebounceInterval)
	}
	if cfg.Verification.DefaultThreshold != 20 {
		t.Errorf("threshold = %v", cfg.Verification.DefaultThreshold)
	}
	if cfg.Security.JWTSecret != "s3cret" {
		t.Errorf("jwt secret not loaded")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Persistence:  PersistenceConfig{Backend: "memory", DebounceInterval: time.Second},
			Verification: VerificationConfig{DefaultThreshold: 15},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "s3" }, "unknown persistence backend"},
		{"file without path", func(c *Config) { c.Persistence.Backend = "file" }, "file_path"},
		{"zero debounce", func(c *Config) { c.Persistence.DebounceInterval = 0 }, "debounce_interval"},
		{"zero threshold", func(c *Config) { c.Verification.DefaultThreshold = 0 }, "default_threshold"},
		{"brokers without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, "events_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "v", SSLMode: "disable", MaxConns: 4}
	want := "postgres://u:p@db:5432/v?sslmode=disable&pool_max_conns=4"
	if got := d.DSN(); got != want {
		t.Fatalf("DSN() = %s, want %s", got, want)
	}
}
