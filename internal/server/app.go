// Package server initializes and runs the sync maintenance daemon.
// It connects the durable queue store, applies schema migrations, opens
// the offline cache and keeps the periodic sweep jobs running until
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/repositories/cache"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"
	"github.com/dstrelkov/mobsync/internal/server/config"
	"github.com/dstrelkov/mobsync/internal/services"
	"github.com/dstrelkov/mobsync/internal/sweeper"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	cacheDB      *sql.DB
	queueService *services.QueueService
	cacheService *services.CacheService
	sweeper      *sweeper.Sweeper
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	ctx := context.Background()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := pingWithRetry(ctx, db); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	cacheRepo, cacheDB, err := cache.InitDatabase(ctx, c.CachePath)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	queueService := services.NewQueueService(db, repos, logger, c.LeaseTimeout)
	cacheService := services.NewCacheService(cacheRepo, logger)
	sw := sweeper.New(queueService, cacheService, logger, c.QueueSweepSchedule, c.CacheSweepSchedule)

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		cacheDB:      cacheDB,
		queueService: queueService,
		cacheService: cacheService,
		sweeper:      sw,
	}, nil
}

// pingWithRetry waits for the database to accept connections; container
// setups often bring the daemon up before Postgres is ready.
func pingWithRetry(ctx context.Context, db *sql.DB) error {
	b := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("sweeper start error: %w", err)
	}

	<-ctx.Done()

	app.sweeper.Stop(context.Background())

	if err := app.cacheDB.Close(); err != nil {
		app.logger.Error(ctx, "cache close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}
