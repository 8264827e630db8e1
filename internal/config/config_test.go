package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRETIMMO_AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr())
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Redis.TTL != 10*time.Minute {
		t.Errorf("redis ttl = %s, want 10m", cfg.Redis.TTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("PRETIMMO_AUTH_JWT_SECRET", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5s
storage:
  driver: postgres
  postgres:
    dsn: postgres://localhost/pretimmo
redis:
  addr: localhost:6379
  ttl: 2m
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Driver != StoragePostgres {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost/pretimmo" {
		t.Errorf("dsn = %q", cfg.Storage.Postgres.DSN)
	}
	if cfg.Redis.TTL != 2*time.Minute {
		t.Errorf("redis ttl = %s", cfg.Redis.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PRETIMMO_AUTH_JWT_SECRET", "test-secret")
	t.Setenv("PRETIMMO_SERVER_PORT", "3001")
	t.Setenv("PRETIMMO_STORAGE_DRIVER", "memory")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  port: 9090\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("port = %d, want env override 3001", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"missing jwt secret": func(cfg *Config) {
			cfg.Auth.JWTSecret = ""
		},
		"unknown driver": func(cfg *Config) {
			cfg.Storage.Driver = "sqlite"
		},
		"postgres without dsn": func(cfg *Config) {
			cfg.Storage.Driver = StoragePostgres
		},
		"supabase without url": func(cfg *Config) {
			cfg.Storage.Driver = StorageSupabase
			cfg.Storage.Supabase.ServiceKey = "key"
		},
		"supabase without key": func(cfg *Config) {
			cfg.Storage.Driver = StorageSupabase
			cfg.Storage.Supabase.URL = "https://example.supabase.co"
		},
		"identity url without key": func(cfg *Config) {
			cfg.Identity.BaseURL = "https://api.identity.test"
		},
		"webhook without identity": func(cfg *Config) {
			cfg.Payments.WebhookSecret = "whsec_x"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			cfg.Auth.JWTSecret = "secret"
			mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
