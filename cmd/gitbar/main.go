package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	desktopadapter "github.com/cmalloy/gitbar/internal/adapter/driven/desktop"
	githubadapter "github.com/cmalloy/gitbar/internal/adapter/driven/github"
	sqliteadapter "github.com/cmalloy/gitbar/internal/adapter/driven/sqlite"
	httphandler "github.com/cmalloy/gitbar/internal/adapter/driving/http"
	"github.com/cmalloy/gitbar/internal/application"
	"github.com/cmalloy/gitbar/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	// 1. Load configuration (fail fast on missing credentials).
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"github_username", cfg.GitHubUsername,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters. A failed snapshot load is not fatal: the
	// engine rebuilds the state on its first cycle.
	snapshotStore := sqliteadapter.NewSnapshotRepo(db)
	if err := snapshotStore.Load(ctx); err != nil {
		slog.Error("loading persisted snapshot failed, starting empty", "error", err)
	}
	settingsStore := sqliteadapter.NewSettingsRepo(db)

	ghClient := githubadapter.NewClient(cfg.GitHubToken)
	notifier := desktopadapter.NewNotifier(cfg.NotifyCommand)

	// 6. Create and start the reconciliation engine.
	engine := application.NewEngine(
		ghClient,
		snapshotStore,
		settingsStore,
		notifier,
		cfg.GitHubUsername,
		cfg.PollInterval,
		cfg.CallTimeout,
	)
	go engine.Start(ctx)

	// 7. Create HTTP handler and start the API server.
	apiHandler := httphandler.NewHandler(engine, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("gitbar started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
