package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/config"
	"github.com/hamed0406/uptimewatch/internal/httpapi"
	apimw "github.com/hamed0406/uptimewatch/internal/httpapi/middleware"
	"github.com/hamed0406/uptimewatch/internal/incident"
	"github.com/hamed0406/uptimewatch/internal/logging"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/registry"
	"github.com/hamed0406/uptimewatch/internal/repo"
	"github.com/hamed0406/uptimewatch/internal/repo/memory"
	"github.com/hamed0406/uptimewatch/internal/repo/postgres"
	"github.com/hamed0406/uptimewatch/internal/repo/sqlite"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
)

func main() {
	// .env is optional; real env wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("exit", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	accept, err := probe.ParseStatusRange(cfg.AcceptStatus)
	if err != nil {
		return err
	}
	checker := probe.NewHTTPChecker(cfg.CheckTimeoutCap)
	checker.Accept = accept
	checker.DiagnoseDNS = cfg.DiagnoseDNS

	hub := notify.NewHub(cfg.AllowedOrigins, logger)
	go hub.Run(ctx)

	sinks := notify.Multi{notify.Log{Logger: logger}, hub}
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		sinks = append(sinks, s)
	}
	if w := notify.NewWebhook(cfg.WebhookURL); w != nil {
		sinks = append(sinks, w)
	}

	sched := scheduler.New(scheduler.Config{
		TickInterval:   cfg.TickInterval,
		MaxConcurrent:  cfg.MaxConcurrent,
		TimeoutRatio:   cfg.TimeoutRatio,
		TimeoutCap:     cfg.CheckTimeoutCap,
		NotifyTimeout:  cfg.NotifyTimeout,
		ResyncSchedule: cfg.ResyncSchedule,
	}, store, registry.New(), checker, sinks, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	api := httpapi.NewServer(logger, store, sched, incident.NewDeriver(store, cfg.IncidentWindow), http.HandlerFunc(hub.HandleConnect))
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("driver", cfg.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	case <-sched.Done():
		// the loop also exits on the signal; only a recorded error is fatal
		if runErr = sched.Err(); runErr != nil {
			logger.Error("scheduler_halted", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler_stop_error", zap.Error(err))
	}
	logger.Info("stopped")
	return runErr
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, pg.Close, nil
	case config.DriverSQLite:
		lite, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return lite, func() {
			if err := lite.Close(); err != nil {
				logger.Warn("sqlite_close_error", zap.Error(err))
			}
		}, nil
	default:
		logger.Warn("memory_store", zap.String("hint", "set DATABASE_URL to keep history across restarts"))
		return memory.New(), func() {}, nil
	}
}
