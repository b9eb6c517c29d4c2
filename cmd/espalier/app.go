package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/config"
	"github.com/aretw0/espalier/pkg/adapters/file"
	"github.com/aretw0/espalier/pkg/adapters/postgres"
	"github.com/aretw0/espalier/pkg/adapters/process"
	"github.com/aretw0/espalier/pkg/adapters/pubsub"
	redisAdapter "github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/adapters/sqlite"
	"github.com/aretw0/espalier/pkg/adapters/sqlstore"
	"github.com/aretw0/espalier/pkg/controller"
	"github.com/aretw0/espalier/pkg/ports"
)

// newEngine wires an engine from the loaded config. extra options are
// applied last.
func newEngine(ctx context.Context, extra ...espalier.Option) (*espalier.Engine, error) {
	opts := []espalier.Option{
		espalier.WithLogger(logger),
		espalier.WithLoader(file.New(cfg.GraphsDir, file.WithLogger(logger))),
		espalier.WithMaxJumpHops(cfg.Workflow.MaxJumpHops),
		espalier.WithParallelism(cfg.Workflow.Parallelism),
		espalier.WithController(newController(cfg.Controller)),
	}

	storeOpts, closeStore, err := storeOptions(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	opts = append(opts, storeOpts...)
	if closeStore != nil {
		opts = append(opts, espalier.WithCloser(closeStore))
	}

	if cfg.Events.Enabled {
		events := pubsub.NewGoChannel(logger)
		opts = append(opts,
			espalier.WithPublisher(pubsub.NewPublisher(events, pubsub.WithTopic(cfg.Events.Topic))),
			espalier.WithCloser(events.Close),
		)
	}

	if cfg.Commands != "" {
		commands, err := process.LoadCommands(cfg.Commands)
		if err != nil {
			if closeStore != nil {
				_ = closeStore()
			}
			return nil, err
		}
		runner := process.NewRunner(
			process.WithCommands(commands),
			process.WithBaseDir(filepath.Dir(cfg.Commands)),
			process.WithLogger(logger),
		)
		for _, name := range runner.Names() {
			opts = append(opts, espalier.WithHandler(name, runner.Handler(name)))
		}
	}

	opts = append(opts, extra...)
	eng, err := espalier.New(ctx, opts...)
	if err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		return nil, err
	}
	return eng, nil
}

func newController(c config.ControllerConfig) ports.StateController {
	switch c.Kind {
	case config.ControllerBlock:
		return controller.Block
	case config.ControllerNotBlock:
		return controller.NotBlock
	default:
		return controller.Actor(c.Keys...)
	}
}

func storeOptions(ctx context.Context, s config.StoreConfig) ([]espalier.Option, func() error, error) {
	switch s.Driver {
	case config.DriverRedis:
		var opts []redisAdapter.Option
		if s.Prefix != "" {
			opts = append(opts, redisAdapter.WithPrefix(s.Prefix))
		}
		if s.TTL > 0 {
			opts = append(opts, redisAdapter.WithTTL(s.TTL))
		}
		repo := redisAdapter.New(s.Address, s.Password, s.DB, opts...)
		if err := repo.Client().Ping(ctx).Err(); err != nil {
			_ = repo.Client().Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", s.Address, err)
		}
		out := []espalier.Option{espalier.WithRepository(repo)}
		if s.Lock {
			out = append(out, espalier.WithDistributedLocker(redisAdapter.NewLocker(repo.Client(), repo.Prefix())))
		}
		logger.Info("Using redis state store", "address", s.Address, "prefix", repo.Prefix())
		return out, repo.Client().Close, nil

	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, s.Path, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store %s: %w", s.Path, err)
		}
		logger.Info("Using sqlite state store", "path", s.Path)
		return []espalier.Option{espalier.WithRepository(repo)}, repo.Close, nil

	case config.DriverPostgres:
		repo, err := postgres.Open(ctx, s.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		logger.Info("Using postgres state store")
		return []espalier.Option{espalier.WithRepository(repo)}, repo.Close, nil

	default:
		logger.Debug("Using in-memory state store")
		return nil, nil, nil
	}
}
