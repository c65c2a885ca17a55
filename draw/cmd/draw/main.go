package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/common/messaging"
	natsclient "github.com/lottoworks/drawstack/common/messaging/nats"
	"github.com/lottoworks/drawstack/draw/internal/audit"
	"github.com/lottoworks/drawstack/draw/internal/config"
	"github.com/lottoworks/drawstack/draw/internal/dlq"
	"github.com/lottoworks/drawstack/draw/internal/handlers"
	"github.com/lottoworks/drawstack/draw/internal/importer"
	drawnats "github.com/lottoworks/drawstack/draw/internal/nats"
	"github.com/lottoworks/drawstack/draw/internal/repository"
	"github.com/lottoworks/drawstack/draw/internal/scheduler"
	"github.com/lottoworks/drawstack/draw/internal/server"
	"github.com/lottoworks/drawstack/draw/internal/service"
	"github.com/lottoworks/drawstack/draw/pkg/engine"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// errNATSDisabled fails exports while the message bus is switched off, so
// drawn lotteries stay unexported until it is enabled.
var errNATSDisabled = errors.New("nats is disabled, results cannot be exported")

type disabledPublisher struct{}

func (disabledPublisher) PublishDrawResult(context.Context, *model.DrawResult) error {
	return errNATSDisabled
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("draw"))
	logging.SetDefault(logger)

	slog.Info("Starting Draw service",
		slog.Int("port", cfg.Server.Port),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx := context.Background()

	// Initialize repository
	var repo repository.Repository
	switch cfg.Database.Driver {
	case "memory":
		slog.Warn("Using in-memory store, data is lost on restart")
		repo = repository.NewMemoryRepository()
	default:
		connString := cfg.Database.Postgres.ConnString()
		if err := runMigrations(cfg.Database.MigrationsPath, connString); err != nil {
			fatal("Failed to run migrations", err)
		}

		pg, err := repository.NewPostgresRepository(ctx, connString, repository.PoolConfig{
			MaxConns:        cfg.Database.Postgres.MaxConns,
			MinConns:        cfg.Database.Postgres.MinConns,
			MaxConnLifetime: cfg.Database.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.Postgres.MaxConnIdleTime,
		})
		if err != nil {
			fatal("Failed to connect to PostgreSQL", err)
		}
		repo = pg
	}
	defer repo.Close()

	// Winners cache in front of the ticket store
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, winners cache disabled", logging.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("Winners cache enabled", slog.Duration("ttl", cfg.Redis.WinnersTTL))
		}
	}
	tickets := repository.NewWinnerCache(repo, redisClient, cfg.Redis.WinnersTTL, logger.Logger)

	// Draw audit trail
	var recorder audit.Recorder = audit.Noop{}
	if cfg.OpenSearch.Enabled {
		osRecorder, err := audit.NewOpenSearchRecorder(ctx, audit.Config{
			URL:         cfg.OpenSearch.URL,
			Username:    cfg.OpenSearch.Username,
			Password:    cfg.OpenSearch.Password,
			Insecure:    cfg.OpenSearch.Insecure,
			IndexPrefix: cfg.OpenSearch.IndexPrefix,
			SigningKey:  cfg.OpenSearch.SigningKey,
		})
		if err != nil {
			slog.Warn("OpenSearch unavailable, draw audit disabled", logging.Error(err))
		} else {
			recorder = osRecorder
			slog.Info("Draw audit enabled", slog.String("opensearch_url", cfg.OpenSearch.URL))
		}
	}

	// NATS JetStream: result export, feed consumers and dead letters
	var (
		js        *natsclient.JetStreamClient
		publisher service.ResultPublisher = disabledPublisher{}
		feeds     *drawnats.Handler
	)
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = "draw"
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Logger = logger.Logger
		js, err = natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			fatal("Failed to connect to NATS", err)
		}
		defer js.Close()

		setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = drawnats.SetupStreams(setupCtx, js)
		cancel()
		if err != nil {
			fatal("Failed to set up JetStream streams", err)
		}
		publisher = drawnats.NewPublisher(js)
		slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
	} else {
		slog.Warn("NATS disabled, feeds are not consumed and results are not exported")
	}

	// Orchestrator
	orch := service.NewOrchestrator(tickets, repo, engine.New(), publisher,
		service.WithAuditRecorder(recorder),
		service.WithLogger(logger.Logger))

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if js != nil {
		imp := importer.New(tickets, repo, logger.Logger)
		feeds = drawnats.NewHandler(imp, dlq.NewJetStreamQueue(js, logger.Logger), drawnats.FeedConfig{
			BatchSize:     cfg.NATS.BatchSize,
			FetchWait:     cfg.NATS.FetchWait,
			AckWait:       cfg.NATS.AckWait,
			StopOnFailure: cfg.NATS.StopOnFailure,
		}, logger.Logger)
		if err := feeds.Start(runCtx, js); err != nil {
			fatal("Failed to start feed consumers", err)
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(orch, cfg.Scheduler.DrawInterval, cfg.Scheduler.ExportInterval, logger.Logger)
		go sched.Start(runCtx)
	} else {
		slog.Info("Scheduler disabled in this instance")
	}

	// Initialize handlers
	handler := handlers.NewHandler(orch, tickets, repo, logger.Logger).
		WithReadyCheck("database", repo.Ping)
	if js != nil {
		handler.WithReadyCheck("nats", func(ctx context.Context) error {
			if status := messaging.CheckClientHealth(ctx, js.Client); !status.Connected {
				return errors.New(status.Error)
			}
			return nil
		})
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, logger.Logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Draw service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("Server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	// Let in-flight batches and draws finish before closing the stores.
	if sched != nil {
		sched.Stop()
	}
	if feeds != nil {
		feeds.Stop()
	}
	stopRun()
	if js != nil {
		if err := js.Drain(); err != nil {
			slog.Warn("NATS drain failed", logging.Error(err))
		}
	}

	slog.Info("Draw service stopped")
}

func runMigrations(source, connString string) error {
	slog.Info("Running database migrations", slog.String("source", source))
	m, err := migrate.New(source, connString)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	slog.Info("Database migrations completed", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, logging.Error(err))
	os.Exit(1)
}
