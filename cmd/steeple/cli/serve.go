package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/config"
	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/notify"
	"github.com/steeplehq/steeple/internal/resource"
	"github.com/steeplehq/steeple/internal/server"
)

const banner = `
 ___ _____ ___ ___ ___ _    ___
/ __|_   _| __| __| _ \ |  | __|
\__ \ | | | _|| _||  _/ |__| _|
|___/ |_| |___|___|_| |____|___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Steeple API server",
		Long:  "Start the HTTP server that backs the church administration dashboard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func newLogger(cfg *config.Config, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newSender(cfg *config.Config, logger *slog.Logger) notify.Sender {
	if cfg.Notify.Mode == "smtp" {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:         cfg.Notify.SMTP.Host,
			Port:         cfg.Notify.SMTP.Port,
			Username:     cfg.Notify.SMTP.Username,
			Password:     cfg.Notify.SMTP.Password,
			From:         cfg.Notify.SMTP.From,
			ResetCodeTTL: config.Duration(cfg.Auth.ResetCodeTTL, auth.DefaultResetTTL),
		})
	}
	return notify.LogSender{Logger: logger}
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Server.Host
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	logger := newLogger(cfg, dev)
	ctx := context.Background()

	// 1. Open the KV store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.Storage.Driver)

	// 2. Identity provider and services
	idp := identity.NewLocal(store, jwtSecret(cfg), jwtExpiry(cfg))
	sender := newSender(cfg, logger)
	authSvc := auth.NewService(store, idp, sender, config.Duration(cfg.Auth.ResetCodeTTL, auth.DefaultResetTTL), logger)
	resSvc := resource.NewService(store)

	// 3. Bootstrap the super admin when configured
	if cfg.Auth.SuperAdminEmail != "" {
		password := os.Getenv("STEEPLE_SUPER_ADMIN_PASSWORD")
		if password == "" {
			logger.Warn("super_admin_email set but STEEPLE_SUPER_ADMIN_PASSWORD is empty, skipping bootstrap")
		} else {
			_, existed, err := authSvc.InitDefaultAdmin(ctx, cfg.Auth.SuperAdminEmail, password)
			if err != nil {
				return fmt.Errorf("bootstrap super admin: %w", err)
			}
			logger.Info("super admin ready", "email", cfg.Auth.SuperAdminEmail, "existed", existed)
		}
	}

	// 4. First-run hint
	hasAdmin, err := authSvc.HasAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - complete setup via POST /api/v1/auth/setup-admin or run: steeple admin create")
	}

	// 5. Build and start the HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	srvCfg.ShutdownTimeout = config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second)
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}

	srv := server.New(srvCfg, store, idp, authSvc, resSvc, sender, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer removePID()

	fmt.Printf("→ Steeple %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}
