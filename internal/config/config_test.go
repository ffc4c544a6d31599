package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steeple.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: 127.0.0.1
auth:
  jwt_expiry: 1h
storage:
  driver: postgres
  dsn: postgres://localhost/steeple
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Auth.JWTExpiry != "1h" {
		t.Errorf("jwt_expiry = %q", cfg.Auth.JWTExpiry)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}

	// Unset fields keep their defaults.
	if cfg.Server.ShutdownTimeout != "30s" {
		t.Errorf("shutdown_timeout = %q, want default 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Notify.Mode != "log" {
		t.Errorf("notify mode = %q, want default log", cfg.Notify.Mode)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("STEEPLE_TEST_SECRET", "from-the-environment")

	path := writeConfig(t, `
auth:
  jwt_secret: ${STEEPLE_TEST_SECRET}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-the-environment" {
		t.Errorf("jwt_secret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steeple.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Server.Port != want.Server.Port {
		t.Errorf("port = %d, want %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.Storage.Driver != want.Storage.Driver {
		t.Errorf("driver = %q, want %q", cfg.Storage.Driver, want.Storage.Driver)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		value string
		def   time.Duration
		want  time.Duration
	}{
		{"5m", time.Hour, 5 * time.Minute},
		{"", time.Hour, time.Hour},
		{"not-a-duration", time.Hour, time.Hour},
		{"90s", 0, 90 * time.Second},
	}

	for _, tt := range tests {
		if got := Duration(tt.value, tt.def); got != tt.want {
			t.Errorf("Duration(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
