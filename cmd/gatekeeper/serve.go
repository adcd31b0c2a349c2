// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/christopher-w1/gatekeeper/internal/auth"
	"github.com/christopher-w1/gatekeeper/internal/auth/memory"
	"github.com/christopher-w1/gatekeeper/internal/auth/postgres"
	"github.com/christopher-w1/gatekeeper/internal/config"
	"github.com/christopher-w1/gatekeeper/internal/httpapi"
	"github.com/christopher-w1/gatekeeper/internal/logging"
	"github.com/christopher-w1/gatekeeper/internal/observability"
	"github.com/christopher-w1/gatekeeper/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP server exposing the registration, login, session,
and profile endpoints, plus a separate metrics/health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("listen-addr", defaults.Server.Addr, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Server.LogFormat, "log format (json or text)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().Bool("in-memory", false, "use the in-memory user store instead of PostgreSQL")
	cmd.Flags().Duration("session-timeout", defaults.Auth.SessionTimeout, "session lifetime")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("gatekeeper", version, cfg.Server.LogFormat)

	slog.Info("starting gatekeeper",
		"addr", cfg.Server.Addr,
		"in_memory", cfg.Database.InMemory,
		"password_scheme", cfg.Auth.PasswordScheme,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, cleanup, err := buildUserRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var hasher auth.PasswordHasher = auth.NewSHAHasher()
	if cfg.Auth.PasswordScheme == config.SchemeArgon2id {
		hasher = auth.NewArgon2idHasher()
	}

	sessions := auth.NewSessionManager(cfg.Auth.SessionTimeout)
	sessions.StartSweeper(ctx, cfg.Auth.SweepInterval)

	limiter := auth.NewLoginLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	service := auth.NewService(users, sessions, limiter, hasher)

	// Observability listener is optional; the API works without it.
	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool { return true })
		obsServer.TrackActiveSessions(sessions.Len)
		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return oops.Code("SERVER_START_FAILED").
				With("operation", "start observability server").
				Wrap(obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	api := httpapi.NewServer(service, httpapi.Options{
		APITokens:       cfg.Auth.APITokens,
		RequireAPIToken: cfg.Auth.RequireAPIToken,
		Metrics:         metrics,
	})

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("SERVER_START_FAILED").
			With("addr", cfg.Server.Addr).
			Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	slog.Info("api server listening", "addr", listener.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case serveErr := <-errCh:
		return oops.Code("SERVER_FAILED").Wrap(serveErr)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// buildUserRepository picks the configured user store. For PostgreSQL it
// connects, applies pending migrations, and hands back a cleanup that
// closes the pool.
func buildUserRepository(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error) {
	if cfg.Database.InMemory {
		slog.Warn("using in-memory user store, data is lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	}

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("connected to database")
	return postgres.NewUserRepository(pool), pool.Close, nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so a failed listener shuts the whole process down.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
