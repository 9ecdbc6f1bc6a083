package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Extract.MinContentChars != 50 {
		t.Errorf("expected min content 50, got %d", cfg.Extract.MinContentChars)
	}
	if cfg.Grading.MinIntervalMS != 7000 {
		t.Errorf("expected 7000ms interval, got %d", cfg.Grading.MinIntervalMS)
	}
	if cfg.Grading.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Grading.MaxAttempts)
	}
	if len(cfg.Grading.Models) != 3 || cfg.Grading.Models[0] != "gemini-2.5-flash-lite" {
		t.Errorf("unexpected default models: %v", cfg.Grading.Models)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})

	t.Run("expands inside a DSN", func(t *testing.T) {
		t.Setenv("TEST_DB_PASS", "pw")
		result := ResolveEnvVars("postgres://u:${TEST_DB_PASS}@db/reval")
		if result != "postgres://u:pw@db/reval" {
			t.Errorf("unexpected DSN: %s", result)
		}
	})
}

func TestConfig_Resolved(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "gm-123")

	cfg := DefaultConfig()
	cfg.Grading.APIKey = "${TEST_GEMINI_KEY}"

	resolved := cfg.Resolved()
	if resolved.Grading.APIKey != "gm-123" {
		t.Errorf("expected gm-123, got %s", resolved.Grading.APIKey)
	}
	if cfg.Grading.APIKey != "${TEST_GEMINI_KEY}" {
		t.Error("Resolved must not mutate the receiver")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database driver"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, "bucket"},
		{"bad backend", func(c *Config) { c.Grading.Backend = "claude" }, "grading backend"},
		{"no models", func(c *Config) { c.Grading.Models = nil }, "at least one model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")

		configContent := `
grading:
  min_interval_ms: 1500
  models:
    - model-a
    - model-b
extract:
  min_content_chars: 80
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		cfg := mgr.Get()
		if cfg.Grading.MinIntervalMS != 1500 {
			t.Errorf("expected 1500, got %d", cfg.Grading.MinIntervalMS)
		}
		if len(cfg.Grading.Models) != 2 || cfg.Grading.Models[1] != "model-b" {
			t.Errorf("unexpected models: %v", cfg.Grading.Models)
		}
		if cfg.Extract.MinContentChars != 80 {
			t.Errorf("expected 80, got %d", cfg.Extract.MinContentChars)
		}
		// Untouched sections keep defaults.
		if cfg.Grading.BaseDelayMS != 5000 {
			t.Errorf("expected default base delay, got %d", cfg.Grading.BaseDelayMS)
		}
		if cfg.Redis.Prefix != "reval" {
			t.Errorf("expected default prefix, got %s", cfg.Redis.Prefix)
		}
	})

	t.Run("env overrides nested keys", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("log:\n  level: info\n"), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("REVAL_REDIS_URL", "redis://cache:6380/2")
		t.Setenv("REVAL_LOG_LEVEL", "debug")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		cfg := mgr.Get()
		if cfg.Redis.URL != "redis://cache:6380/2" {
			t.Errorf("expected env redis url, got %s", cfg.Redis.URL)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("expected env log level, got %s", cfg.Log.Level)
		}
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("grading: [unclosed"), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected error for invalid yaml")
		}
	})
}

func TestManager_OnChange(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var got []*Config
	mgr.OnChange(func(cfg *Config) { got = append(got, cfg) })
	mgr.OnChange(func(cfg *Config) { got = append(got, cfg) })

	next := DefaultConfig()
	next.Grading.MinIntervalMS = 10
	mgr.apply(next)

	if len(got) != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", len(got))
	}
	if mgr.Get().Grading.MinIntervalMS != 10 {
		t.Errorf("expected swapped config, got %d", mgr.Get().Grading.MinIntervalMS)
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Log.Level
			}
			done <- struct{}{}
		}()
	}
	for j := 0; j < 20; j++ {
		mgr.apply(DefaultConfig())
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := mgr.Get()
	if cfg.Grading.MinIntervalMS != 7000 || cfg.Extract.MinContentChars != 50 {
		t.Errorf("written defaults did not round trip: %+v", cfg.Grading)
	}
	if mgr.ConfigFile() != path {
		t.Errorf("expected config file %s, got %s", path, mgr.ConfigFile())
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}
