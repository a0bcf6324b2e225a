package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/DBImport/internal/config"
	"github.com/JonMunkholm/DBImport/internal/ingest"
	"github.com/JonMunkholm/DBImport/internal/logging"
	"github.com/JonMunkholm/DBImport/internal/store/memory"
	"github.com/JonMunkholm/DBImport/internal/store/postgres"
	"github.com/JonMunkholm/DBImport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestion failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	service := ingest.NewService(store, cfg)

	if cfg.Status.Enabled() {
		server := web.NewServer(service)
		go func() {
			if err := server.Start(cfg.Status.Addr); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("status server shutdown error", "error", err)
			}
		}()
	}

	report, err := service.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("ingestion finished",
		"run_id", report.RunID,
		"partitions", report.Partitions,
		"records", report.Summary.Records,
		"dropped", report.Dropped,
		"duration_ms", report.Summary.Duration.Milliseconds(),
	)
	return nil
}

// openStore builds the configured Store and returns a func releasing it.
func openStore(ctx context.Context, cfg *config.Config) (ingest.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store, nothing will be persisted")
		return memory.New(), func() {}, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}

		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		store := postgres.New(pool, postgres.Options{
			WriteMode:     cfg.Database.WriteMode,
			PartitionLock: cfg.Database.PartitionLock,
		})
		if cfg.Database.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
