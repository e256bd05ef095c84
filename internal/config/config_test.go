package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("DEVICE_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Expected HTTP_ADDR default ':8080', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.Device.Period != 30*time.Second {
		t.Errorf("Expected telemetry period 30s, got %v", cfg.Device.Period)
	}
	if cfg.Device.TrailSize != 3 {
		t.Errorf("Expected trail size 3, got %d", cfg.Device.TrailSize)
	}
	if cfg.Device.Mode != "synthetic" {
		t.Errorf("Expected DEVICE_MODE default 'synthetic', got '%s'", cfg.Device.Mode)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Expected SESSION_STORE default 'memory', got '%s'", cfg.Session.Store)
	}
	if cfg.Session.SweepInterval != time.Minute {
		t.Errorf("Expected session sweep interval 1m, got %v", cfg.Session.SweepInterval)
	}
	if cfg.Reminder.Every != "@every 24h" {
		t.Errorf("Expected reminder every '@every 24h', got '%s'", cfg.Reminder.Every)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKEND_URL", "http://backend:8001/api/")
	t.Setenv("DEVICE_MODE", "mqtt")
	t.Setenv("DEVICE_NAME_PREFIXES", "ESP32, CPAP ,")
	t.Setenv("TELEMETRY_PERIOD", "5s")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REALTIME_ENABLED", "true")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://backend:8001/api" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.Backend.BaseURL)
	}
	if cfg.Device.Mode != "mqtt" {
		t.Errorf("Expected DEVICE_MODE 'mqtt', got '%s'", cfg.Device.Mode)
	}
	if len(cfg.Device.NamePrefixes) != 2 || cfg.Device.NamePrefixes[1] != "CPAP" {
		t.Errorf("Expected prefixes [ESP32 CPAP], got %v", cfg.Device.NamePrefixes)
	}
	if cfg.Device.Period != 5*time.Second {
		t.Errorf("Expected period 5s, got %v", cfg.Device.Period)
	}
	if !cfg.Realtime.Enabled {
		t.Errorf("Expected realtime enabled")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Expected REDIS_DB 2, got %d", cfg.Redis.DB)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected invalid DB_PORT to keep default 5432, got %d", cfg.Database.Port)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	content := `
http:
  addr: ":9090"
device:
  mode: none
  trail_size: 10
reminder:
  notifier: mqtt
  delay: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DEVICE_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("Expected yaml addr ':9090', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.Device.Mode != "none" {
		t.Errorf("Expected yaml device mode 'none', got '%s'", cfg.Device.Mode)
	}
	if cfg.Device.TrailSize != 3 {
		t.Errorf("Expected trail size clamped to 3, got %d", cfg.Device.TrailSize)
	}
	if cfg.Reminder.Delay != 2*time.Second {
		t.Errorf("Expected reminder delay 2s, got %v", cfg.Reminder.Delay)
	}
	// 未覆盖的字段保留默认值
	if cfg.Device.Period != 30*time.Second {
		t.Errorf("Expected default period preserved, got %v", cfg.Device.Period)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=h port=1 user=u password=p dbname=d sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
