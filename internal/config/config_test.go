package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("expected default driver memory, got %s", cfg.Storage.Driver)
	}
	if cfg.RepresentationMode() != schema.DynamicMap {
		t.Errorf("expected default mode dynamic-map, got %s", cfg.Mode)
	}
	if len(cfg.Mapping.Paths) != 1 || cfg.Mapping.Paths[0] != "mappings" {
		t.Errorf("expected default mapping path 'mappings', got %v", cfg.Mapping.Paths)
	}
	if cfg.Storage.Redis.Prefix != "tuplizer:" {
		t.Errorf("expected default redis prefix, got %s", cfg.Storage.Redis.Prefix)
	}
	if cfg.Notify.Workers != 2 {
		t.Errorf("expected 2 notify workers, got %d", cfg.Notify.Workers)
	}
	if cfg.Server.Addr != ":8081" {
		t.Errorf("expected server addr ':8081', got %s", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	configContent := `
mode: typed-object
mapping:
  paths: [schema, /etc/tuplizer/shared]
storage:
  driver: sqlite3
  dsn: file:test.db
log:
  level: debug
  development: true
`
	if err := os.WriteFile("tuplizer.yaml", []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.RepresentationMode() != schema.TypedObject {
		t.Errorf("expected typed-object mode, got %s", cfg.Mode)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.DSN != "file:test.db" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}

	if !strings.HasSuffix(cfg.Mapping.Paths[0], filepath.Join(filepath.Base(dir), "schema")) {
		t.Errorf("expected relative mapping path resolved against config dir, got %s", cfg.Mapping.Paths[0])
	}
	if cfg.Mapping.Paths[1] != "/etc/tuplizer/shared" {
		t.Errorf("expected absolute mapping path unchanged, got %s", cfg.Mapping.Paths[1])
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Storage.Driver != DriverRedis {
		t.Errorf("expected redis driver, got %s", cfg.Storage.Driver)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TUPLIZER_STORAGE_DRIVER", "pgx")
	t.Setenv("TUPLIZER_STORAGE_DSN", "postgres://localhost/tuplizer")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Storage.Driver != DriverPgx {
		t.Errorf("expected pgx from environment, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN != "postgres://localhost/tuplizer" {
		t.Errorf("expected dsn from environment, got %s", cfg.Storage.DSN)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Mapping: MappingConfig{Paths: []string{"mappings"}},
			Mode:    "dynamic-map",
			Storage: StorageConfig{Driver: DriverMemory, Redis: RedisConfig{Addr: "localhost:6379"}},
			Notify:  NotifyConfig{Workers: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Mode = "xml" }, "mode"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"sql without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis; c.Storage.Redis.Addr = "" }, "storage.redis.addr"},
		{"no workers", func(c *Config) { c.Notify.Workers = 0 }, "notify.workers"},
		{"no mapping paths", func(c *Config) { c.Mapping.Paths = nil }, "mapping.paths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "tuplizer.yml"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "src", "deep", "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	chdir(t, nested)

	found, err := FindConfig()
	if err != nil {
		t.Fatalf("expected to find config, got error: %v", err)
	}

	// On macOS, /tmp is symlinked to /private/tmp, so resolve both paths
	resolvedFound, _ := filepath.EvalSymlinks(found)
	resolvedWant, _ := filepath.EvalSymlinks(filepath.Join(root, "tuplizer.yml"))
	if resolvedFound != resolvedWant {
		t.Errorf("expected %s, got %s", resolvedWant, resolvedFound)
	}
}
