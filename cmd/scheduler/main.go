package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/config"
	"github.com/example/item-scheduler/internal/logging"
	"github.com/example/item-scheduler/internal/persistence/sqlite"
	"github.com/example/item-scheduler/internal/recurrence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the components every subcommand shares.
type app struct {
	cfg      config.Config
	location *time.Location
	logger   *slog.Logger
	storage  *sqlite.Storage
	engine   *recurrence.Engine
	service  *application.ItemService
}

// bootstrap loads configuration, opens and migrates the database and builds
// the item service. Logs go to logOut.
func bootstrap(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	storage, err := sqlite.Open(cfg.Storage(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	engine, err := recurrence.NewEngine(cfg.Engine(loc))
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	service, err := application.NewItemService(
		storage.Items,
		storage.Exceptions,
		engine,
		alerts.NewResolver(loc, cfg.Reminders),
		application.WithLogger(logger),
		application.WithMaxRangeDays(cfg.Projection.MaxRangeDays),
		application.WithWorkers(cfg.Projection.Workers),
	)
	if err != nil {
		engine.Close()
		_ = storage.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		location: loc,
		logger:   logger,
		storage:  storage,
		engine:   engine,
		service:  service,
	}, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return logging.New(out, level, cfg.Format), nil
}
