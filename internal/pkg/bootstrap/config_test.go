package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points-service.yaml")
	yaml := []byte(`
app:
  port: 9100
session:
  store: redis
  stale_after: 1m
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NACOS_SERVER_ADDRS", "")
	os.Unsetenv("NACOS_SERVER_ADDRS")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("APP_PORT", "9200")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.App.Port != 9200 {
		t.Errorf("port = %d, want env override 9200", cfg.App.Port)
	}
	if cfg.Session.Store != "redis" || cfg.Session.StaleAfter != time.Minute {
		t.Errorf("session = %+v", cfg.Session)
	}
	if GetCurrentConfig() != cfg {
		t.Error("GetCurrentConfig() should return the loaded config")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("session:\n  store: etcd\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NACOS_SERVER_ADDRS", "")
	os.Unsetenv("NACOS_SERVER_ADDRS")
	t.Setenv("CONFIG_PATH", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown session store")
	}
}
