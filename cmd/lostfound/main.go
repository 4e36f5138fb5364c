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

	"github.com/asegarra/lostfound/internal/auction"
	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/config"
	"github.com/asegarra/lostfound/internal/coordinator"
	"github.com/asegarra/lostfound/internal/health"
	"github.com/asegarra/lostfound/internal/item"
	"github.com/asegarra/lostfound/internal/leader"
	"github.com/asegarra/lostfound/internal/match"
	"github.com/asegarra/lostfound/internal/notify"
	"github.com/asegarra/lostfound/internal/store"
	"github.com/asegarra/lostfound/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/asegarra/lostfound/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open the store using the configured driver.
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Initialize the engines and the coordinator.
	lifecycle := item.NewLifecycle(repos.Items, repos.Locations, repos.Events, logger, tp.TracerProvider, clk)
	matcher := match.NewEngine(repos.Items, repos.Matches, repos.Alerts, repos.Events, logger, tp.TracerProvider, clk,
		cfg.Policy.MatchThreshold, cfg.Policy.DateWindowDays)
	ledger := auction.NewLedger(repos.Auctions, repos.Events, logger, tp.TracerProvider, clk)
	dispatcher := &notify.LogDispatcher{Logger: logger}
	coord := coordinator.New(lifecycle, matcher, ledger, repos, dispatcher, logger, tp.TracerProvider, clk)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// runSweeper is the periodic disposition sweep; only the leader runs it.
	runSweeper := func(ctx context.Context) {
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "lostfound is running", slog.String("version", version))

		ticker := time.NewTicker(cfg.Policy.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				healthHandler.SetReady(false)
				return
			case <-ticker.C:
				eligible, sweepErr := coord.RunDispositionSweep(ctx, "", cfg.Policy.MinAgeDays)
				if sweepErr != nil {
					logger.ErrorContext(ctx, "disposition sweep failed", slog.Any("error", sweepErr))
					continue
				}
				logger.InfoContext(ctx, "disposition sweep finished",
					slog.Int("eligible", len(eligible)),
				)
			}
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, runSweeper, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		runSweeper(ctx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
