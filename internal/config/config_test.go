package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Store.Table != "profiles" {
		t.Errorf("Table = %q, want profiles", cfg.Store.Table)
	}
	if cfg.Stripe.SignatureTolerance != 5*time.Minute {
		t.Errorf("SignatureTolerance = %v, want 5m", cfg.Stripe.SignatureTolerance)
	}
	if cfg.Stripe.MaxBodyBytes != 262144 {
		t.Errorf("MaxBodyBytes = %d", cfg.Stripe.MaxBodyBytes)
	}
	if cfg.Breaker.Implementation != "gobreaker" || !cfg.Breaker.Enabled {
		t.Errorf("Breaker = %+v", cfg.Breaker)
	}
	if !cfg.IsLocal() {
		t.Error("IsLocal() = false")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/app")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("NORMALIZE_EMAIL", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Store.URL.Unmask() != "postgres://user:pass@db:5432/app" {
		t.Errorf("DATABASE_URL not loaded")
	}
	if cfg.Stripe.WebhookSecret.Unmask() != "whsec_test" {
		t.Errorf("STRIPE_WEBHOOK_SECRET not loaded")
	}
	if !cfg.Stripe.NormalizeEmail {
		t.Error("NormalizeEmail = false")
	}
	if cfg.Server.RateLimitRequests != 30 || cfg.Server.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v", cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)
	}
}

func TestLoad_Dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PORT=7070\nSTORE_DRIVER=sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("PORT")
	os.Unsetenv("STORE_DRIVER")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Store.Driver != DriverSQLite {
		t.Errorf("dotenv values not applied: port=%q driver=%q", cfg.Server.Port, cfg.Store.Driver)
	}
}

func TestLoad_MissingDotenvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Fatalf("Load() error = %v, want parsing ConfigError", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad environment", map[string]string{"APP_ENV": "qa"}, "Environment"},
		{"bad driver", map[string]string{"STORE_DRIVER": "oracle"}, "Driver"},
		{"non numeric port", map[string]string{"PORT": "http"}, "Port"},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"firestore without project", map[string]string{"STORE_DRIVER": "firestore"}, "FIRESTORE_PROJECT_ID"},
		{"redis cache on redis", map[string]string{
			"STORE_DRIVER":    "redis",
			"DATABASE_URL":    "redis://localhost:6379/0",
			"CACHE_REDIS_URL": "redis://localhost:6379/1",
		}, "CACHE_REDIS_URL"},
		{"bad breaker impl", map[string]string{"CIRCUIT_BREAKER_IMPL": "hystrix"}, "Implementation"},
		{"table on memory store", map[string]string{"PROFILES_TABLE": "accounts"}, "PROFILES_TABLE"},
		{"table on redis store", map[string]string{
			"STORE_DRIVER":   "redis",
			"DATABASE_URL":   "redis://localhost:6379/0",
			"PROFILES_TABLE": "accounts",
		}, "PROFILES_TABLE"},
		{"auto migrate with custom table", map[string]string{
			"STORE_DRIVER":   "postgres",
			"DATABASE_URL":   "postgres://localhost/subtrack",
			"AUTO_MIGRATE":   "true",
			"PROFILES_TABLE": "accounts",
		}, "AUTO_MIGRATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Load() error = %v, want *ConfigError", err)
			}
			if cfgErr.Type != ErrValidation {
				t.Errorf("Type = %q, want validation", cfgErr.Type)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_CustomTable(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("PROFILES_TABLE", "accounts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Table != "accounts" {
		t.Errorf("Table = %q, want accounts", cfg.Store.Table)
	}
}

func TestSecretString_Redacts(t *testing.T) {
	s := SecretString("whsec_super_secret")

	if got := s.String(); got != redactedPlaceholder {
		t.Errorf("String() = %q", got)
	}
	if got := fmt.Sprintf("%v %s %#v", s, s, s); strings.Contains(got, "super_secret") {
		t.Errorf("formatted output leaked secret: %q", got)
	}
	if s.Unmask() != "whsec_super_secret" {
		t.Errorf("Unmask() = %q", s.Unmask())
	}

	b, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{s})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"secret":"***REDACTED***"}` {
		t.Errorf("Marshal() = %s", b)
	}
}

func TestSecretString_Empty(t *testing.T) {
	var s SecretString
	if s.IsSet() {
		t.Error("IsSet() = true for empty secret")
	}
	if s.String() != "" {
		t.Errorf("String() = %q, want empty", s.String())
	}
}
