package main

import (
	"context"
	"log/slog"

	"github.com/kadirpekel/fosrc/pkg/builder"
	"github.com/kadirpekel/fosrc/pkg/config"
)

// instance is a loaded config plus the application built from it.
type instance struct {
	cfg    *config.Config
	loader *config.Loader
	app    *builder.App

	cleanups []func()
}

// loadConfig reads --config when given and the environment otherwise.
func loadConfig(ctx context.Context, cli *CLI, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	return config.Resolve(ctx, cli.Config, opts...)
}

// start loads config, applies its logging section and builds the App.
func start(ctx context.Context, cli *CLI, opts ...config.LoaderOption) (*instance, error) {
	cfg, loader, err := loadConfig(ctx, cli, opts...)
	if err != nil {
		return nil, err
	}
	rt := &instance{cfg: cfg, loader: loader}

	if cli.Config != "" {
		cleanup, err := applyConfigLogging(cli, cfg.Logging)
		if err != nil {
			rt.close()
			return nil, err
		}
		if cleanup != nil {
			rt.cleanups = append(rt.cleanups, cleanup)
		}
	}

	if rt.app, err = builder.Build(ctx, cfg); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *instance) close() {
	if rt.app != nil {
		if err := rt.app.Close(context.Background()); err != nil {
			slog.Warn("Failed to close application", "error", err)
		}
	}
	if rt.loader != nil {
		_ = rt.loader.Close()
	}
	for _, fn := range rt.cleanups {
		fn()
	}
}
