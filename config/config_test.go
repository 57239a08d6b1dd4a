package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/scopedb/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  driver: "sqlite"
  dsn: "/var/lib/scopedb/main.db"

schema:
  paths:
    - "/etc/scopedb/schema.yaml"
    - "/etc/scopedb/extra"

transaction:
  open_timeout: 250ms

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`

	cfg := writeAndLoad(t, content)

	if cfg.Database.DSN != "/var/lib/scopedb/main.db" {
		t.Errorf("Database.DSN = %s, want /var/lib/scopedb/main.db", cfg.Database.DSN)
	}
	if len(cfg.Schema.Paths) != 2 {
		t.Fatalf("len(Schema.Paths) = %d, want 2", len(cfg.Schema.Paths))
	}
	if cfg.Schema.Paths[1] != "/etc/scopedb/extra" {
		t.Errorf("Schema.Paths[1] = %s, want /etc/scopedb/extra", cfg.Schema.Paths[1])
	}
	if cfg.Transaction.OpenTimeout != 250*time.Millisecond {
		t.Errorf("Transaction.OpenTimeout = %v, want 250ms", cfg.Transaction.OpenTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
schema:
  paths: ["schema.yaml"]
`

	path := writeFile(t, content)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	dir := filepath.Dir(path)

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default Database.Driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != filepath.Join(dir, "scopedb.db") {
		t.Errorf("default Database.DSN = %s, want scopedb.db next to the config", cfg.Database.DSN)
	}
	if cfg.Schema.Paths[0] != filepath.Join(dir, "schema.yaml") {
		t.Errorf("Schema.Paths[0] = %s, want it resolved against the config dir", cfg.Schema.Paths[0])
	}
	if cfg.Transaction.OpenTimeout != 5*time.Second {
		t.Errorf("default OpenTimeout = %v, want 5s", cfg.Transaction.OpenTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("default Logging.Format = %s, want console", cfg.Logging.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("default Metrics.Enabled = true, want false")
	}
}

func TestLoad_MemoryDriverKeepsEmptyDSN(t *testing.T) {
	content := `
database:
  driver: memory
schema:
  paths: ["/s.yaml"]
`
	cfg := writeAndLoad(t, content)
	if cfg.Database.DSN != "" {
		t.Errorf("Database.DSN = %q, want empty", cfg.Database.DSN)
	}
}

func TestLoad_InMemorySQLite(t *testing.T) {
	content := `
database:
  dsn: ":memory:"
schema:
  paths: ["/s.yaml"]
`
	cfg := writeAndLoad(t, content)
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("Database.DSN = %q, want :memory:", cfg.Database.DSN)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SCHEMA_DIR", "/srv/schemas")

	content := `
schema:
  paths: ["${TEST_SCHEMA_DIR}/main.yaml"]
`

	cfg := writeAndLoad(t, content)

	if cfg.Schema.Paths[0] != "/srv/schemas/main.yaml" {
		t.Errorf("Schema.Paths[0] = %s, want /srv/schemas/main.yaml", cfg.Schema.Paths[0])
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing schema paths",
			content: "logging:\n  level: info\n",
			wantErr: "schema.paths is required",
		},
		{
			name:    "unknown driver",
			content: "database:\n  driver: postgres\nschema:\n  paths: [/s.yaml]\n",
			wantErr: "database.driver",
		},
		{
			name:    "bad log level",
			content: "schema:\n  paths: [/s.yaml]\nlogging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: "schema:\n  paths: [/s.yaml]\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "negative timeout",
			content: "schema:\n  paths: [/s.yaml]\ntransaction:\n  open_timeout: -1s\n",
			wantErr: "open_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := writeAndLoadErr(t, "schema: [unclosed")
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCOPEDB_SCHEMA_PATHS", "/a.yaml, /b")
	t.Setenv("SCOPEDB_DATABASE_DSN", "/tmp/env-test.db")
	t.Setenv("SCOPEDB_TX_OPEN_TIMEOUT", "2s")
	t.Setenv("SCOPEDB_LOG_LEVEL", "debug")
	t.Setenv("SCOPEDB_LOG_FORMAT", "json")
	t.Setenv("SCOPEDB_METRICS_ENABLED", "yes")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if len(cfg.Schema.Paths) != 2 || cfg.Schema.Paths[1] != "/b" {
		t.Errorf("Schema.Paths = %v, want [/a.yaml /b]", cfg.Schema.Paths)
	}
	if cfg.Database.DSN != "/tmp/env-test.db" {
		t.Errorf("Database.DSN = %s, want /tmp/env-test.db", cfg.Database.DSN)
	}
	if cfg.Transaction.OpenTimeout != 2*time.Second {
		t.Errorf("OpenTimeout = %v, want 2s", cfg.Transaction.OpenTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("SCOPEDB_SCHEMA_PATHS", "")

	if _, err := config.LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing schema paths")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SCOPEDB_LOG_LEVEL", "error")
	t.Setenv("SCOPEDB_DATABASE_DRIVER", "memory")

	content := `
database:
  driver: sqlite
schema:
  paths: ["/s.yaml"]
logging:
  level: debug
`
	cfg := writeAndLoad(t, content)

	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error (env override)", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %s, want memory (env override)", cfg.Database.Driver)
	}
}

func TestEnvOverrides_InvalidDuration(t *testing.T) {
	t.Setenv("SCOPEDB_TX_OPEN_TIMEOUT", "soon")

	cfg := writeAndLoad(t, "schema:\n  paths: [/s.yaml]\n")
	if cfg.Transaction.OpenTimeout != 5*time.Second {
		t.Errorf("OpenTimeout = %v, want default 5s for an unparsable override", cfg.Transaction.OpenTimeout)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeFile(t, "schema:\n  paths: [/from-file.yaml]\n")
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Schema.Paths[0] != "/from-file.yaml" {
			t.Errorf("Schema.Paths[0] = %s, want /from-file.yaml", cfg.Schema.Paths[0])
		}
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("SCOPEDB_SCHEMA_PATHS", "/from-env.yaml")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Schema.Paths[0] != "/from-env.yaml" {
			t.Errorf("Schema.Paths[0] = %s, want /from-env.yaml", cfg.Schema.Paths[0])
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("SCOPEDB_SCHEMA_PATHS", "")
		if _, err := config.LoadWithFallback(""); err == nil {
			t.Fatal("expected error with no config")
		}
	})
}

func TestHasEnvConfig(t *testing.T) {
	t.Setenv("SCOPEDB_SCHEMA_PATHS", "")
	if config.HasEnvConfig() {
		t.Error("HasEnvConfig = true with no env")
	}
	t.Setenv("SCOPEDB_SCHEMA_PATHS", "/s.yaml")
	if !config.HasEnvConfig() {
		t.Error("HasEnvConfig = false with SCOPEDB_SCHEMA_PATHS set")
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" on ", true},
		{"false", false},
		{"0", false},
		{"nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SCOPEDB_METRICS_ENABLED", tt.value)
			cfg := writeAndLoad(t, "schema:\n  paths: [/s.yaml]\n")
			if cfg.Metrics.Enabled != tt.want {
				t.Errorf("Metrics.Enabled for %q = %v, want %v", tt.value, cfg.Metrics.Enabled, tt.want)
			}
		})
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeFile(t, content))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scopedb.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
