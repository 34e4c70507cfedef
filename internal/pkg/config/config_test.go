package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
app:
  port: 9000
session:
  store: redis
  stale_after: 2m
points:
  exclusion_policy: non-awardable-only
  exclusion_rule: item.gift_card
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.App.Port != 9000 || cfg.App.Name != "points-service" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Session.Store != "redis" || cfg.Session.StaleAfter != 2*time.Minute || cfg.Session.TTL != 24*time.Hour {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Points.ExclusionRule != "item.gift_card" {
		t.Errorf("points = %+v", cfg.Points)
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	tests := []string{
		"session:\n  store: etcd\n",
		"points:\n  exclusion_policy: sometimes\n",
		"session:\n  stale_after: 0s\n",
		"app: [",
	}
	for _, in := range tests {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || cfg.App.Port != 8090 {
		t.Fatalf("LoadFile(missing) = %+v, %v", cfg, err)
	}

	path := filepath.Join(t.TempDir(), "points-service.yaml")
	if err := os.WriteFile(path, []byte("loyalty:\n  base_url: https://shop.example\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Loyalty.BaseURL != "https://shop.example" {
		t.Errorf("base_url = %q", cfg.Loyalty.BaseURL)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APP_PORT", "7001")
	t.Setenv("REDIS_ADDRS", "r1:6379,r2:6379")
	t.Setenv("SESSION_STORE", "mysql")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.App.Port != 7001 || len(cfg.Infra.Redis.Addrs) != 2 || cfg.Session.Store != "mysql" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestMySQLDSN(t *testing.T) {
	m := MySQLConfig{Host: "db", Port: 3306, User: "points", Password: "p@ss", Database: "easypoints", Params: map[string]string{"charset": "utf8mb4"}}
	dsn := m.DSN()
	for _, want := range []string{"points:p@ss@tcp(db:3306)/easypoints", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN() = %q, missing %q", dsn, want)
		}
	}
}
