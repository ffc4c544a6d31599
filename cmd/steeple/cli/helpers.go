package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steeplehq/steeple/internal/config"
	"github.com/steeplehq/steeple/internal/kv"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag, the
// STEEPLE_DATA_DIR env var, or ~/.steeple as fallback.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("STEEPLE_DATA_DIR"); envDir != "" {
		return envDir
	}
	if cfg != nil && cfg.Storage.DataDir != "" {
		return cfg.Storage.DataDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.steeple"
}

// loadConfig reads the config file selected by --config or viper's search
// path, falling back to defaults when none exists.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore builds the KV store selected by the storage configuration.
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	if cfg.Storage.Driver == "postgres" {
		return kv.OpenPostgres(ctx, cfg.Storage.DSN)
	}
	return kv.OpenSQLite(resolveDataDir(cfg))
}

// jwtSecret resolves the token signing secret, preferring the config file
// over the environment.
func jwtSecret(cfg *config.Config) string {
	if s := cfg.Auth.JWTSecret; s != "" && !strings.HasPrefix(s, "${") {
		return s
	}
	if s := os.Getenv("STEEPLE_JWT_SECRET"); s != "" {
		return s
	}
	return "steeple-dev-secret-change-me"
}

func jwtExpiry(cfg *config.Config) time.Duration {
	return config.Duration(cfg.Auth.JWTExpiry, 24*time.Hour)
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(nil), "steeple.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir(nil)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(nil), "steeple.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
