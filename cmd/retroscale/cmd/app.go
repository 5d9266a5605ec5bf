package cmd

import (
	"context"
	"log/slog"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/database"
	"github.com/retroscale/retroscale/internal/pipeline"
	"github.com/retroscale/retroscale/internal/queue"
)

// buildQueue assembles the worker pool over the production pipeline, with
// the database mirror attached when enabled. The returned cleanup closes
// the database connection; it is safe to call when no database is open.
func buildQueue(cfg *config.Config, logger *slog.Logger) (*queue.ProcessingQueue, func(), error) {
	cleanup := func() {}

	var store queue.Store
	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		gormStore, err := queue.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		store = gormStore
		cleanup = func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
	}

	p := pipeline.NewDefault(cfg, logger)
	runner := queue.RunnerFunc(func(ctx context.Context, input, output string, progress pipeline.ProgressFunc) error {
		_, err := p.Process(ctx, input, output, progress)
		return err
	})

	q := queue.New(runner, queue.Options{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval.AsDuration(),
		StopTimeout:  cfg.Queue.StopTimeout.AsDuration(),
		OutputDir:    cfg.Storage.OutputDir,
		Extensions:   cfg.Storage.Extensions,
		Store:        store,
	}, logger)

	return q, cleanup, nil
}
