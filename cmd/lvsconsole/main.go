package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/lvs-console/internal/cache"
	"github.com/raaihank/lvs-console/internal/config"
	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/server"
	"github.com/raaihank/lvs-console/internal/store"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the gateway at this address (e.g. localhost:8080) and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lvs-console %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting lvs-console",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.URL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := initializeDeps(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer cleanup()

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create gateway", zap.Error(err))
	}

	if err := config.Watch(func(next *config.Config) {
		if err := log.SetLevel(next.Logging.Level); err != nil {
			log.Warn("Ignoring log level from reloaded config", zap.Error(err))
		}
		srv.ApplyConfig(next)
		log.Info("Configuration reloaded")
	}, func(err error) {
		log.Warn("Configuration reload rejected", zap.Error(err))
	}); err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests (and running LVS jobs) time to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			cancel()
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// initializeDeps connects the optional parse cache and run history store
func initializeDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (server.Deps, func(), error) {
	var (
		deps     server.Deps
		closers  []func() error
		cleanupF = func() {
			for _, c := range closers {
				_ = c()
			}
		}
	)

	if cfg.Cache.Enabled {
		rc, err := cache.NewReportCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache"))
		if err != nil {
			log.Warn("Parse cache unavailable, continuing without it", zap.Error(err))
		} else {
			deps.Cache = rc
			closers = append(closers, rc.Close)
		}
	}

	if cfg.Store.Enabled {
		st, err := store.New(&store.Config{
			DatabaseURL:     cfg.Store.DatabaseURL,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		}, log.WithComponent("store"))
		if err != nil {
			cleanupF()
			return server.Deps{}, nil, fmt.Errorf("failed to open run store: %w", err)
		}
		closers = append(closers, st.Close)

		if err := st.Migrate(ctx); err != nil {
			cleanupF()
			return server.Deps{}, nil, fmt.Errorf("failed to migrate run store: %w", err)
		}
		deps.Store = st
	}

	return deps, cleanupF, nil
}

// performHealthCheck checks a running gateway
func performHealthCheck(addr string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
