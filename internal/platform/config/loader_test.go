package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8080
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
auth:
  issuer: "receipts"
  access_ttl: 10m
  store:
    type: memory
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := NewLoader().WithDotEnv(false).WithPath(configFile).WithEnv(envFrom(nil)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Auth.AccessTTL != 10*time.Minute {
		t.Errorf("expected access ttl 10m, got %s", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.Issuer != "receipts" || cfg.Auth.Store.Type != "memory" {
		t.Errorf("unexpected auth section: %+v", cfg.Auth)
	}
	// untouched sections keep their defaults
	if cfg.Auth.RefreshTTL != 5*24*time.Hour {
		t.Errorf("expected default refresh ttl, got %s", cfg.Auth.RefreshTTL)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	cfg, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "missing.yaml")).
		WithEnv(envFrom(map[string]string{})).
		Load()
	if err == nil {
		t.Fatalf("explicit missing path must fail, got %+v", cfg)
	}

	env := envFrom(map[string]string{
		"CONFIG_PATH":                 filepath.Join(t.TempDir(), "absent.yaml"),
		"TOKEN_SECRET_KEY":            "s3cret",
		"ISSUER":                      "shop",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "15",
		"REFRESH_TOKEN_EXPIRE_DAYS":   "2",
		"ENV":                         "prod",
		"POSTGRES_USER":               "u",
		"POSTGRES_PASSWORD":           "p",
		"POSTGRES_HOST":               "db",
		"POSTGRES_DB":                 "receipts",
	})
	// CONFIG_PATH pointing at a missing file is tolerated: defaults apply.
	cfg, err = NewLoader().WithDotEnv(false).WithEnv(env).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.SecretKey != "s3cret" || cfg.Auth.Issuer != "shop" {
		t.Errorf("secret/issuer not overridden: %+v", cfg.Auth)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute || cfg.Auth.RefreshTTL != 48*time.Hour {
		t.Errorf("ttl overrides not applied: %s %s", cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	}
	if !cfg.Server.IsProduction() {
		t.Errorf("expected production env")
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://u:p@db/receipts" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
}

func TestLoader_BadInteger(t *testing.T) {
	env := envFrom(map[string]string{
		"CONFIG_PATH":                 filepath.Join(t.TempDir(), "absent.yaml"),
		"ACCESS_TOKEN_EXPIRE_MINUTES": "five",
	})
	if _, err := NewLoader().WithDotEnv(false).WithEnv(env).Load(); err == nil {
		t.Fatal("expected error for non-numeric ttl")
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	mutate := func(fn func(*Config)) *Config {
		cfg := DefaultConfig()
		fn(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: DefaultConfig(), wantErr: false},
		{name: "invalid server port", config: mutate(func(c *Config) { c.Server.Port = 70000 }), wantErr: true},
		{name: "empty secret", config: mutate(func(c *Config) { c.Auth.SecretKey = " " }), wantErr: true},
		{name: "asymmetric algorithm", config: mutate(func(c *Config) { c.Auth.Algorithm = "RS256" }), wantErr: true},
		{name: "zero access ttl", config: mutate(func(c *Config) { c.Auth.AccessTTL = 0 }), wantErr: true},
		{name: "unknown store", config: mutate(func(c *Config) { c.Auth.Store.Type = "etcd" }), wantErr: true},
		{name: "unknown database", config: mutate(func(c *Config) { c.Database.Driver = "mysql" }), wantErr: true},
		{name: "line width bounds", config: mutate(func(c *Config) { c.Receipt.MinLineWidth = 200 }), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.validate(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
