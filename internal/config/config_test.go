package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_WritesTemplatesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected template %s: %v", name, err)
		}
	}
	info, err := os.Stat(CredentialsPath(dir))
	if err != nil {
		t.Fatalf("stat credentials: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials permissions = %o, want 600", perm)
	}

	if cfg.Broker.Mode != "neo" {
		t.Errorf("Broker.Mode = %q, want neo", cfg.Broker.Mode)
	}
	if cfg.Broker.Timeout != 30*time.Second {
		t.Errorf("Broker.Timeout = %v, want 30s", cfg.Broker.Timeout)
	}
	if cfg.Panel.DefaultEnvironment != "prod" {
		t.Errorf("DefaultEnvironment = %q, want prod", cfg.Panel.DefaultEnvironment)
	}
	if cfg.Security.AuditEnabled {
		t.Error("audit log should be off by default")
	}
	ep, ok := cfg.Broker.Endpoints["uat"]
	if !ok {
		t.Fatal("missing uat endpoints")
	}
	if ep.LoginURL != DefaultLoginURL || ep.HoldingsPath != DefaultHoldingsPath {
		t.Errorf("uat endpoints = %+v", ep)
	}
}

func TestLoad_ReadsFilesAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.toml"), `
[panel]
default_environment = "uat"
output_format = "yaml"

[broker]
mode = "paper"
timeout = "5s"

[broker.paper]
reference_price = 250.5
`)
	writeFile(t, filepath.Join(dir, "credentials.toml"), `
[neo]
consumer_key = "file-key"
mobile_number = "+919999999999"
ucc = "AB123"
`)

	t.Setenv(EnvConsumerKey, "env-key")
	t.Setenv(EnvMPIN, "123456")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Panel.DefaultEnvironment != "uat" || cfg.Panel.OutputFormat != "yaml" {
		t.Errorf("Panel = %+v", cfg.Panel)
	}
	if !cfg.IsPaperMode() {
		t.Error("expected paper mode")
	}
	if cfg.Broker.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Broker.Timeout)
	}
	if cfg.Broker.Paper.ReferencePrice != 250.5 {
		t.Errorf("ReferencePrice = %v", cfg.Broker.Paper.ReferencePrice)
	}
	creds := cfg.Credentials.Neo
	if creds.ConsumerKey != "env-key" {
		t.Errorf("ConsumerKey = %q, want env override", creds.ConsumerKey)
	}
	if creds.UCC != "AB123" || creds.MPIN != "123456" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"production alias", func(c *Config) { c.Panel.DefaultEnvironment = "production" }, ""},
		{"bad environment", func(c *Config) { c.Panel.DefaultEnvironment = "staging" }, "default_environment"},
		{"bad format", func(c *Config) { c.Panel.OutputFormat = "xml" }, "output_format"},
		{"bad mode", func(c *Config) { c.Broker.Mode = "kite" }, "broker mode"},
		{"zero timeout", func(c *Config) { c.Broker.Timeout = 0 }, "timeout"},
		{"missing endpoints", func(c *Config) { delete(c.Broker.Endpoints, "prod") }, "broker.endpoints.prod"},
		{"paper ignores endpoints", func(c *Config) {
			c.Broker.Mode = "paper"
			c.Broker.Endpoints = nil
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
