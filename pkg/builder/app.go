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

// Package builder wires configuration into a running application: model
// provider, embedder, vector index, catalog client, tool registry, dispatch
// loop, compactor, session manager and ingestion service.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/fosrc/pkg/agent"
	"github.com/kadirpekel/fosrc/pkg/catalog"
	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/conversation"
	"github.com/kadirpekel/fosrc/pkg/embedder"
	"github.com/kadirpekel/fosrc/pkg/ingest"
	"github.com/kadirpekel/fosrc/pkg/memory"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
	"github.com/kadirpekel/fosrc/pkg/repotools"
	"github.com/kadirpekel/fosrc/pkg/retrieval"
	"github.com/kadirpekel/fosrc/pkg/tokens"
	"github.com/kadirpekel/fosrc/pkg/tool"
	"github.com/kadirpekel/fosrc/pkg/vector"
)

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	LLM       model.LLM
	Embedder  embedder.Embedder
	Store     vector.Provider
	Catalog   retrieval.Catalog
	Retrieval *retrieval.Adapter
	Tools     *tool.Registry
	Loop      *agent.Loop
	Compactor *memory.Compactor
	Sessions  *conversation.Manager
	Ingest    *ingest.Service
	Metrics   *observability.Metrics

	closers []func(context.Context) error
}

type options struct {
	llm      model.LLM
	embedder embedder.Embedder
	store    vector.Provider
	catalog  retrieval.Catalog
}

// Option replaces a component that would otherwise be built from config.
type Option func(*options)

func WithLLM(llm model.LLM) Option { return func(o *options) { o.llm = llm } }

func WithEmbedder(e embedder.Embedder) Option { return func(o *options) { o.embedder = e } }

func WithStore(s vector.Provider) Option { return func(o *options) { o.store = s } }

func WithCatalog(c retrieval.Catalog) Option { return func(o *options) { o.catalog = c } }

// Build constructs the application from a validated config. On failure every
// component created so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (app *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	if err := app.initObservability(ctx); err != nil {
		return nil, err
	}

	app.LLM = o.llm
	if app.LLM == nil {
		if app.LLM, err = LLMFromConfig(cfg.LLM).Build(); err != nil {
			return nil, err
		}
	}
	llm := app.LLM
	app.closers = append(app.closers, func(context.Context) error { return llm.Close() })

	app.Embedder = o.embedder
	if app.Embedder == nil {
		if app.Embedder, err = embedder.New(cfg.Embedder); err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	app.Store = o.store
	if app.Store == nil {
		if app.Store, err = vector.NewProvider(cfg.Vector); err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
	}
	store := app.Store
	app.closers = append(app.closers, func(context.Context) error { return store.Close() })

	app.Catalog = o.catalog
	if app.Catalog == nil {
		client, err := catalog.NewClient(cfg.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog client: %w", err)
		}
		app.Catalog = client
	}

	app.Retrieval = retrieval.NewAdapter(app.Catalog, app.Embedder, app.Store, cfg.Retrieval)

	app.Tools = tool.NewRegistry()
	if err := repotools.Register(app.Tools, app.Retrieval, app.LLM); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	counter := tokens.NewCounter(cfg.LLM.Model)
	app.Loop = agent.NewLoop(app.LLM, app.Tools, cfg.Agent)
	app.Compactor = memory.NewCompactor(app.LLM, cfg.Memory, counter)
	app.Sessions = conversation.NewManager(app.Loop, app.Compactor, repotools.SystemPrompt, cfg.Session)

	if app.Ingest, err = ingest.New(app.LLM, app.Embedder, app.Store, counter, cfg.Ingest); err != nil {
		return nil, fmt.Errorf("failed to create ingest service: %w", err)
	}

	slog.Info("Application ready",
		"llm", cfg.LLM.Provider, "model", app.LLM.Name(),
		"vector", app.Store.Name(), "tools", app.Tools.Names())
	return app, nil
}

func (a *App) initObservability(ctx context.Context) error {
	obs := a.Config.Observability
	if obs.Metrics.Enabled {
		m, err := observability.InitMetrics(obs.Metrics)
		if err != nil {
			return err
		}
		a.Metrics = m
		observability.SetGlobalMetrics(m)
		a.closers = append(a.closers, m.Shutdown)
	}
	if obs.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, obs.Tracing)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, shutdown)
	}
	return nil
}

// Answer runs one stateless repository question through the tool loop.
func (a *App) Answer(ctx context.Context, question string) (*agent.Turn, error) {
	return a.Loop.Answer(ctx, repotools.SystemPrompt, question)
}

// Close releases components in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
