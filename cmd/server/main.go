/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env / .env)
  2. Set up slog
  3. Open SQLite store (auto-migrates)
  4. Optionally seed demo data (-seed)
  5. Build service, handler, router
  6. Start accrual scheduler
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the database
  4. Exit

EXAMPLES:
  # File database on the default port
  DB_PATH=./data/leave.db ./server

  # In-memory database with demo data
  DB_PATH=":memory:" ./server -seed

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attendly/leave-ledger/api"
	"github.com/attendly/leave-ledger/config"
	"github.com/attendly/leave-ledger/ledger"
	"github.com/attendly/leave-ledger/store/sqlite"
)

func main() {
	seed := flag.Bool("seed", false, "load demo policies and employees on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := ledger.NewService(st,
		ledger.WithAuditSink(st.Audit()),
		ledger.WithTimezone(cfg.Timezone),
		ledger.WithLogger(logger),
	)

	if *seed {
		if err := seedDemoData(context.Background(), st); err != nil {
			logger.Error("seeding failed", "err", err)
			os.Exit(1)
		}
		logger.Info("demo data seeded")
	}

	handler := api.NewHandler(svc, st.Audit(), cfg.SchedulerSecret)
	router := api.NewRouter(handler, logger, cfg.CORSOrigins)

	scheduler := api.NewAccrualScheduler(svc, logger)
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Timezone = cfg.Timezone
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	scheduler.Stop()
	logger.Info("server stopped")
}
