// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/kadirpekel/fosrc/pkg/auth"
	"github.com/kadirpekel/fosrc/pkg/builder"
	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
	"github.com/kadirpekel/fosrc/pkg/server"
)

const janitorInterval = time.Minute

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Host  string `help:"Host to bind (overrides config)."`
	Port  int    `help:"Port to listen on (overrides config)."`
	Watch bool   `help:"Reload the config file on change."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	reloads := make(chan *config.Config, 1)
	rt, err := start(ctx, cli, config.WithOnChange(func(cfg *config.Config) {
		// Keep only the newest pending reload.
		select {
		case <-reloads:
		default:
		}
		reloads <- cfg
	}))
	if err != nil {
		return err
	}
	defer func() { rt.close() }()

	c.override(&rt.cfg.Server)

	var validator *auth.Validator
	if rt.cfg.Auth.Enabled {
		if validator, err = auth.NewJWKSValidator(ctx, rt.cfg.Auth); err != nil {
			return fmt.Errorf("failed to set up authentication: %w", err)
		}
	}

	limiter, err := ratelimit.New(rt.cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to set up rate limiting: %w", err)
	}
	if limiter != nil {
		go sweepLimiter(ctx, limiter)
	}

	opts := []server.Option{server.WithRateLimit(limiter)}
	if validator != nil {
		opts = append(opts, server.WithAuth(validator, rt.cfg.Auth.Roles...))
	}
	srv := server.NewServer(rt.cfg.Server, rt.app, opts...)
	live := &liveApp{cmd: c, srv: srv, cfg: rt.cfg}
	live.startJanitor(ctx, rt.app)

	if c.Watch {
		if rt.loader == nil {
			slog.Warn("--watch needs --config; ignoring")
		} else {
			go func() {
				if err := rt.loader.Watch(ctx); err != nil && ctx.Err() == nil {
					slog.Error("Config watch error", "error", err)
				}
			}()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case cfg := <-reloads:
						live.reload(ctx, cfg)
					}
				}
			}()
		}
	}

	printStartup(rt.cfg, srv, validator != nil, limiter != nil)
	err = srv.Start(ctx)
	live.stop()
	// rt.close releases whichever App is live after any swaps.
	rt.app = srv.App()
	return err
}

func (c *ServeCmd) override(s *config.ServerConfig) {
	if c.Host != "" {
		s.Host = c.Host
	}
	if c.Port != 0 {
		s.Port = c.Port
	}
}

// liveApp tracks the served App across config reloads.
type liveApp struct {
	cmd *ServeCmd
	srv *server.Server

	mu          sync.Mutex
	cfg         *config.Config
	stopJanitor context.CancelFunc
}

func (l *liveApp) startJanitor(ctx context.Context, app *builder.App) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopJanitor != nil {
		l.stopJanitor()
	}
	jctx, cancel := context.WithCancel(ctx)
	l.stopJanitor = cancel
	go app.Sessions.Janitor(jctx, janitorInterval)
}

func (l *liveApp) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopJanitor != nil {
		l.stopJanitor()
	}
}

// reload builds an App from cfg and swaps it in. Sessions move over; the old
// App is closed once in-flight requests have had time to finish. Server
// and auth or quota settings need a restart.
func (l *liveApp) reload(ctx context.Context, cfg *config.Config) {
	l.cmd.override(&cfg.Server)

	l.mu.Lock()
	prev := l.cfg
	l.mu.Unlock()
	if !reflect.DeepEqual(cfg.Server, prev.Server) || !reflect.DeepEqual(cfg.Auth, prev.Auth) ||
		!reflect.DeepEqual(cfg.RateLimit, prev.RateLimit) {
		slog.Warn("Server, auth and rate limit changes take effect after a restart")
	}

	next, err := builder.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to rebuild application; keeping the running one", "error", err)
		return
	}

	old := l.srv.Swap(next)
	moved := old.Sessions.MoveTo(next.Sessions)
	l.startJanitor(ctx, next)
	slog.Info("Configuration applied", "sessions", moved)

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	time.AfterFunc(prev.Server.WriteTimeout, func() {
		if err := old.Close(context.Background()); err != nil {
			slog.Warn("Failed to close previous application", "error", err)
		}
	})
}

func sweepLimiter(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("Expired rate limit windows dropped", "count", n)
			}
		}
	}
}

func printStartup(cfg *config.Config, srv *server.Server, authEnabled, rateLimited bool) {
	addr := srv.Address()
	fmt.Printf("\nfosrc server ready\n")
	fmt.Printf("   API:        http://%s/api/v1\n", addr)
	fmt.Printf("   Health:     http://%s/health\n", addr)
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:    http://%s/metrics\n", addr)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:    %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	fmt.Printf("   Model:      %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("   Vector:     %s (%s)\n", cfg.Vector.Type, cfg.Vector.Index)
	fmt.Printf("   Repository: %s\n", cfg.Catalog.Server)
	if authEnabled {
		fmt.Printf("   Auth:       JWT (%s)\n", cfg.Auth.Issuer)
	}
	if rateLimited {
		fmt.Printf("   Quotas:     %d limits per client\n", len(cfg.RateLimit.Limits))
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
