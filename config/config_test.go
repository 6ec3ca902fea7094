package config

import (
	"path/filepath"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestStoreDriver_UnmarshalText(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    StoreDriver
		expectError bool
	}{
		{name: "file", input: "file", expected: StoreDriverFile},
		{name: "redis", input: "redis", expected: StoreDriverRedis},
		{name: "postgres", input: "postgres", expected: StoreDriverPostgres},
		{name: "memory", input: "memory", expected: StoreDriverMemory},
		{name: "mixed case with spaces", input: " Redis ", expected: StoreDriverRedis},
		{name: "empty", input: "", expectError: true},
		{name: "unknown", input: "sqlite", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d StoreDriver
			err := d.UnmarshalText([]byte(tt.input))

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if d != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, d)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NODE_ENV", "")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.IsDev {
		t.Errorf("expected production mode by default")
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("unexpected base url: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.API.RefreshPath != "/auth/refresh" || cfg.API.LoginRoute != "/auth/login" {
		t.Errorf("unexpected routes: %q %q", cfg.API.RefreshPath, cfg.API.LoginRoute)
	}
	if cfg.Store.Driver != StoreDriverFile {
		t.Errorf("expected file driver, got %q", cfg.Store.Driver)
	}
	if want := filepath.Join(home, ".blocpoint", "state.json"); cfg.Store.FilePath != want {
		t.Errorf("expected state path %q, got %q", want, cfg.Store.FilePath)
	}
	if cfg.Store.Namespace != "default" {
		t.Errorf("unexpected namespace: %q", cfg.Store.Namespace)
	}
	if cfg.Redis.KeyPrefix != "blocpoint:state:" {
		t.Errorf("unexpected redis key prefix: %q", cfg.Redis.KeyPrefix)
	}
	if cfg.Observability.Metrics.IsEnabled() {
		t.Errorf("expected metrics to be disabled by default")
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("DEV", "true")
	t.Setenv("API_BASE_URL", "https://api.blocpoint.test/api/v1/")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("API_USER_AGENT", "Mozilla/5.0 (Linux; Android 14)")
	t.Setenv("API_PLATFORM", " Android ")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_NAMESPACE", "agent-7")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_URI", "rediss://cache.internal:6380/1")
	t.Setenv("REDIS_KEY_PREFIX", "agent:")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsDev {
		t.Errorf("expected dev mode")
	}
	if cfg.API.BaseURL != "https://api.blocpoint.test/api/v1" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.API.Platform != "Android" {
		t.Errorf("expected platform trimmed, got %q", cfg.API.Platform)
	}
	if cfg.Store.Driver != StoreDriverPostgres || cfg.Store.Namespace != "agent-7" {
		t.Errorf("unexpected store config: %#v", cfg.Store)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 6543 {
		t.Errorf("unexpected postgres config: %#v", cfg.Postgres)
	}
	if cfg.Redis.URI != "rediss://cache.internal:6380/1" || cfg.Redis.KeyPrefix != "agent:" {
		t.Errorf("unexpected redis config: %#v", cfg.Redis)
	}
}

func TestAppConfig_InvalidDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected invalid store driver to fail parsing")
	}
}

func TestAppConfig_NodeEnvDevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")

	cfg := AppConfig{}
	cfg.Sanitize()

	if !cfg.IsDev {
		t.Fatal("expected NODE_ENV=development to enable dev mode")
	}
}

func TestAPIConfig_Sanitize(t *testing.T) {
	cfg := APIConfig{BaseURL: "  ", Timeout: -time.Second, RefreshPath: " /auth/refresh "}
	cfg.Sanitize()

	if cfg.BaseURL != DefaultAPIBaseURL {
		t.Errorf("expected default base url, got %q", cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Timeout)
	}
	if cfg.RefreshPath != "/auth/refresh" {
		t.Errorf("expected refresh path trimmed, got %q", cfg.RefreshPath)
	}
}

func TestStoreConfig_Sanitize(t *testing.T) {
	cfg := StoreConfig{FilePath: " /tmp/state.json ", Namespace: "  "}
	cfg.Sanitize()

	if cfg.Driver != StoreDriverFile {
		t.Errorf("expected file driver fallback, got %q", cfg.Driver)
	}
	if cfg.FilePath != "/tmp/state.json" {
		t.Errorf("expected path trimmed, got %q", cfg.FilePath)
	}
	if cfg.Namespace != "default" {
		t.Errorf("expected default namespace, got %q", cfg.Namespace)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.Prefix != "blocpoint" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        "agent",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "agent" {
		t.Fatalf("expected custom prefix kept, got %q", cfg.Prefix)
	}
}
