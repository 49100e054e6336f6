// Package main provides the gauge registry server entry point.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolcrib/gaugetrack/pkg/api"
	"github.com/toolcrib/gaugetrack/pkg/calibration"
	"github.com/toolcrib/gaugetrack/pkg/config"
	"github.com/toolcrib/gaugetrack/pkg/db"
	"github.com/toolcrib/gaugetrack/pkg/gauge"
)

func main() {
	var (
		listenAddr string
		configPath string
		dbDriver   string
		dbDSN      string
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&configPath, "config", ".", "Directory containing gaugetrack.yaml")
	flag.StringVar(&dbDriver, "db-driver", "", "Database driver: postgres, mysql or sqlite (overrides config)")
	flag.StringVar(&dbDSN, "db-dsn", "", "Database connection string (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		cfg.Service.Listen = listenAddr
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
	}

	logger.Info("starting gauge server",
		"listen", cfg.Service.Listen,
		"driver", cfg.Database.Driver,
	)

	conn, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	gauges := gauge.NewGaugeStore(conn)
	if err := gauges.AutoMigrate(); err != nil {
		logger.Error("failed to migrate gauge tables", "error", err)
		os.Exit(1)
	}
	batches := calibration.NewBatchStore(conn)
	if err := batches.AutoMigrate(); err != nil {
		logger.Error("failed to migrate calibration tables", "error", err)
		os.Exit(1)
	}

	history := gauge.NewHistoryStore(conn)
	ids := gauge.NewIdentifierAllocator()
	sets := gauge.NewSetService(conn, gauges, ids, history)
	cascades := gauge.NewCascadeService(conn, gauges, history)
	certs := calibration.NewCertificateStore(conn)
	workflow := calibration.NewWorkflowService(conn, batches, certs, nil, gauges, cascades)

	router := api.NewRouter(api.Deps{
		Gauges:   gauges,
		Sets:     sets,
		Cascades: cascades,
		History:  history,
		Workflow: workflow,
		Certs:    certs,
	})

	server := &http.Server{
		Addr:         cfg.Service.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Service.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
