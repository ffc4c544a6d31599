// Package server wires the chi router, middleware stack, and handlers into
// the steeple HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/handler"
	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/kv"
	"github.com/steeplehq/steeple/internal/notify"
	"github.com/steeplehq/steeple/internal/openapi"
	"github.com/steeplehq/steeple/internal/resource"
	"github.com/steeplehq/steeple/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// CredentialRateLimit caps requests per minute per IP on the login and
	// password-reset endpoints. Zero disables the limiter, which tests rely
	// on.
	CredentialRateLimit int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8080,
		ShutdownTimeout:     30 * time.Second,
		CORSOrigins:         []string{"*"},
		CredentialRateLimit: 20,
	}
}

// Server is the top-level HTTP server for steeple. It owns the chi router
// and the services behind it.
type Server struct {
	cfg        Config
	router     chi.Router
	store      kv.Store
	idp        identity.Provider
	authSvc    *auth.Service
	resSvc     *resource.Service
	sender     notify.Sender
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store kv.Store, idp identity.Provider, authSvc *auth.Service, resSvc *resource.Service, sender notify.Sender, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		idp:     idp,
		authSvc: authSvc,
		resSvc:  resSvc,
		sender:  sender,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", openapi.Handler())

	authHandler := handler.NewAuthHandler(s.authSvc)
	resHandler := handler.NewResourceHandler(s.resSvc)
	usersHandler := handler.NewUsersHandler(s.authSvc)
	settingsHandler := handler.NewSettingsHandler(s.store)
	commsHandler := handler.NewCommunicationsHandler(s.resSvc, s.sender)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {

		// Authentication endpoints
		r.Route("/auth", func(r chi.Router) {
			r.Get("/check-admin", authHandler.HasAdmin)
			r.Get("/session", authHandler.Session)
			r.Post("/logout", authHandler.Logout)

			// Credential endpoints sit behind the rate limiter so passwords
			// and 6-digit reset codes cannot be brute-forced.
			r.Group(func(r chi.Router) {
				if s.cfg.CredentialRateLimit > 0 {
					r.Use(middleware.RateLimit(s.cfg.CredentialRateLimit))
				}
				r.Post("/setup-admin", authHandler.Setup)
				r.Post("/login", authHandler.Login)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/verify-reset-code", authHandler.VerifyResetCode)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(s.idp))
				r.Get("/me", authHandler.Me)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		// Dashboard collections, all authenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.idp))

			for _, col := range resource.Collections {
				base := "/" + col.BasePath()
				r.Get(base, resHandler.List(col))
				r.Post(base, resHandler.Create(col))
				if !col.AppendOnly {
					r.Put(base+"/{id}", resHandler.Update(col))
					r.Delete(base+"/{id}", resHandler.Delete(col))
				}
			}

			r.Post("/communications/send-email", commsHandler.SendEmail)

			r.Get("/settings", settingsHandler.Get)
		})

		// Super-admin surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.idp))
			r.Use(middleware.RequireSuperAdmin())

			r.Put("/settings", settingsHandler.Update)

			r.Get("/users", usersHandler.List)
			r.Post("/users", usersHandler.Create)
			r.Put("/users/{id}", usersHandler.Update)
			r.Delete("/users/{id}", usersHandler.Delete)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the KV store is
// reachable, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","checks":{"store":"error: ` + err.Error() + `"}}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","checks":{"store":"ok"}}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
