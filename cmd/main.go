package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/S1riyS/vfsd/internal/config"
	"github.com/S1riyS/vfsd/internal/handler"
	"github.com/S1riyS/vfsd/internal/kfile"
	"github.com/S1riyS/vfsd/internal/metrics"
	"github.com/S1riyS/vfsd/internal/middleware"
	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/internal/proc"
	"github.com/S1riyS/vfsd/internal/repository"
	"github.com/S1riyS/vfsd/internal/server"
	"github.com/S1riyS/vfsd/internal/service"
	"github.com/S1riyS/vfsd/pkg/database/postgresql"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/S1riyS/vfsd/pkg/logging/slogext"
	"github.com/S1riyS/vfsd/pkg/logging/slogpretty"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := pflag.StringP("config", "c", defaultConfigPath, "path to the YAML config")
	pflag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logger)

	if err := run(ctx, cfg); err != nil {
		logger.Error("vfsd stopped with errors", slogext.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	const op = "main.run"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	// A second daemon fails here before touching any state.
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: namespace server already running on %s: %w", op, addr, err)
	}

	// Dependencies
	files := kfile.New()
	procs := proc.NewTable(files)
	if err := seedProcesses(ctx, cfg, procs); err != nil {
		logger.Warn("Some processes were not registered", slogext.Err(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterOpenFiles(reg, files.InUse, kfile.OpenMax)

	ns := service.NewNamespaceService(procs)
	srv := server.New(ns,
		server.WithMetrics(metrics.New(reg)),
		server.WithMailboxSize(cfg.VFS.MailboxSize),
	)

	mux := http.NewServeMux()
	handler.NewHandler(srv, procs, cfg.App.DefaultTimeout).RegisterRoutes(mux, reg)
	httpServer := &http.Server{
		Handler:           middleware.RequestIDMiddleware(middleware.LoggingMiddleware(mux)),
		ReadHeaderTimeout: cfg.App.DefaultTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Run(runCtx) }()

	httpDone := make(chan error, 1)
	go func() {
		logger.Info("Listening", slog.String("addr", addr))
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
			return
		}
		httpDone <- nil
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
	case err := <-httpDone:
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	logger.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.App.DefaultTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}

	cancel()
	if err := <-srvDone; err != nil {
		result = multierror.Append(result, fmt.Errorf("namespace server: %w", err))
	}
	return result.ErrorOrNil()
}

// seedProcesses registers the configured boot processes, then the ones kept in
// postgres when the database is enabled. The configured set is written back so
// the registry survives restarts.
func seedProcesses(ctx context.Context, cfg *config.Config, procs *proc.Table) error {
	const op = "main.seedProcesses"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	boot := make([]models.Process, 0, len(cfg.VFS.Processes))
	for _, p := range cfg.VFS.Processes {
		boot = append(boot, models.Process{PID: p.PID, FatherPID: p.FatherPID, Owner: p.Owner, Cmd: p.Cmd})
	}

	var result *multierror.Error
	if err := procs.Seed(boot); err != nil {
		result = multierror.Append(result, err)
	}

	if !cfg.Database.Enabled {
		logger.Info("Process registry seeded from config", slog.Int("count", len(boot)))
		return result.ErrorOrNil()
	}

	db := postgresql.MustNewClient(ctx, cfg.Database, cfg.App.DefaultTimeout)
	defer db.Close()
	repo := repository.NewProcessRepository(db, cfg.Database.ProcessTable)

	if err := repo.SaveAll(ctx, boot); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: save boot processes: %w", op, err))
	}

	stored, err := repo.List(ctx)
	if err != nil {
		return multierror.Append(result, fmt.Errorf("%s: list processes: %w", op, err)).ErrorOrNil()
	}

	// Configured processes were registered above.
	extra := stored[:0]
	for _, p := range stored {
		if procs.Get(p.PID) == nil {
			extra = append(extra, p)
		}
	}
	if err := procs.Seed(extra); err != nil {
		result = multierror.Append(result, err)
	}

	logger.Info("Process registry seeded",
		slog.Int("config", len(boot)),
		slog.Int("database", len(extra)),
	)
	return result.ErrorOrNil()
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	prettyOpts := slogpretty.PrettyHandlerOptions{SlogOpts: opts}
	return slog.New(prettyOpts.NewPrettyHandler(os.Stdout))
}
