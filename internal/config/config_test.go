package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
mysql:
  host: db
  password: pw
business:
  idempotency_ttl: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.MySQL.Host != "db" || cfg.MySQL.Password != "pw" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Business.IdempotencyTTL != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", cfg.Business.IdempotencyTTL)
	}
	if cfg.Business.MaxRetryCount != 3 || cfg.Kafka.Topic.Notification != "billsplit.notification" {
		t.Fatalf("expected defaults to apply, got %+v", cfg.Business)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "mysql:\n  host: db\n")
	t.Setenv("BILLSPLIT_MYSQL_HOST", "override")
	t.Setenv("BILLSPLIT_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MySQL.Host != "override" {
		t.Fatalf("expected env override, got %s", cfg.MySQL.Host)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("expected jwt secret from env, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	c := MySQLConfig{User: "u", Password: "p", Host: "h", Port: 3306, Database: "d"}
	want := "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local&multiStatements=true"
	if got := c.DSN(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
