// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/mendsys/mend/pkg/config"
	"github.com/mendsys/mend/pkg/health"
	"github.com/mendsys/mend/pkg/llm"
	"github.com/mendsys/mend/pkg/mcp"
	"github.com/mendsys/mend/pkg/memory"
	"github.com/mendsys/mend/pkg/memory/ollama"
	"github.com/mendsys/mend/pkg/memory/qdrant"
	"github.com/mendsys/mend/pkg/pipeline"
	"github.com/mendsys/mend/pkg/redact"
	"github.com/mendsys/mend/pkg/telemetry"

	_ "modernc.org/sqlite"
)

// app bundles everything a subcommand may need.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    memory.Store
	pipeline *pipeline.Pipeline
	registry *mcp.Registry
	health   *health.Registry
	shutdown []func(context.Context) error
}

// Close releases resources in reverse construction order.
func (a *app) Close(ctx context.Context) {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// buildStore constructs just the experience store. Lighter than buildApp
// for subcommands that never call a model.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Memory.Backend {
	case "", "inmemory":
		return memory.NewInMemory(), noop, nil
	case "file":
		return memory.NewFileStore(cfg.Memory.Path), noop, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Memory.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, err := memory.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, func(context.Context) error { return db.Close() }, nil
	case "qdrant", "vector":
		vs, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		embedder := ollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
		vm := memory.NewVectorMemory(vs, embedder, memory.NewInMemory(), "experiences")
		if err := vm.Initialize(ctx); err != nil {
			vs.Close()
			return nil, nil, fmt.Errorf("init vector memory: %w", err)
		}
		logger.Info("vector memory ready", "addr", cfg.Memory.QdrantAddr)
		return vm, func(context.Context) error { return vs.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "gemini":
		if cfg.LLM.APIKey != "" {
			return llm.NewGeminiWithAPIKey(ctx, cfg.LLM.APIKey, llm.WithGeminiModel(cfg.LLM.Model))
		}
		return llm.NewGemini(ctx, llm.WithGeminiModel(cfg.LLM.Model))
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "mock":
		return &llm.MockProvider{Response: "{}"}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// buildApp wires config, telemetry, memory, toolsets and the pipeline.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	a.logger = telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdownTelemetry, err := telemetry.InitWithConfig(cfg.App.Name, cfg.App.Version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		OTLPHeaders:        otlpHeaders(cfg.Telemetry),
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownTelemetry)

	store, closeStore, err := buildStore(ctx, cfg, a.logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.store = store
	a.shutdown = append(a.shutdown, closeStore)

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.registry = mcp.LoadRegistry(ctx, a.logger, mcp.DefaultServerSpecs())
	a.shutdown = append(a.shutdown, func(context.Context) error {
		a.registry.Close()
		return nil
	})

	metrics, err := telemetry.NewLoopMetrics(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init loop metrics: %w", err)
	}

	p, err := buildPipeline(provider, cfg, store, a.registry, metrics, a.logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.pipeline = p
	a.health = buildHealth(cfg, store, a.registry)
	return a, nil
}

// buildHealth registers the component checkers behind /healthz.
func buildHealth(cfg *config.Config, store memory.Store, registry *mcp.Registry) *health.Registry {
	reg := health.NewRegistry()

	reg.Register("memory", health.CheckerFunc(func(ctx context.Context) health.Result {
		stats, err := store.Stats(ctx)
		if err != nil {
			return health.Result{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.Result{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%s backend, %d resolutions", cfg.Memory.Backend, stats.TotalResolutions),
		}
	}))

	reg.Register("tools", health.CheckerFunc(func(ctx context.Context) health.Result {
		n := registry.Len()
		if n == 0 {
			return health.Result{Status: health.StatusDegraded, Message: "no MCP tools connected"}
		}
		return health.Result{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d tools available", n),
		}
	}))

	reg.Register("llm", health.Static(health.StatusHealthy,
		fmt.Sprintf("%s/%s configured", cfg.LLM.Provider, cfg.LLM.Model)))

	return reg
}

func buildPipeline(provider llm.Provider, cfg *config.Config, store memory.Store,
	registry *mcp.Registry, recorder pipeline.Recorder, logger *slog.Logger) (*pipeline.Pipeline, error) {

	stage := func(name, instruction string) (*pipeline.Collaborator, error) {
		return pipeline.NewCollaborator(name, provider,
			pipeline.WithInstruction(instruction),
			pipeline.WithModel(cfg.LLM.Model),
			pipeline.WithTools(registry),
			pipeline.WithLogger(logger),
		)
	}

	triageCollab, err := stage("triage", pipeline.TriageInstruction)
	if err != nil {
		return nil, err
	}
	resolverCollab, err := stage("resolver", pipeline.ResolverInstruction)
	if err != nil {
		return nil, err
	}
	criticCollab, err := stage("critic", pipeline.CriticInstruction)
	if err != nil {
		return nil, err
	}
	refinerCollab, err := stage("refiner", pipeline.RefinerInstruction)
	if err != nil {
		return nil, err
	}
	narratorCollab, err := stage("narrator", pipeline.NarratorInstruction)
	if err != nil {
		return nil, err
	}

	loop := pipeline.NewLoop(
		pipeline.NewCritic(criticCollab),
		pipeline.NewRefiner(refinerCollab, store),
		store,
		pipeline.WithThreshold(cfg.Loop.Threshold),
		pipeline.WithMaxIterations(cfg.Loop.MaxIterations),
		pipeline.WithLoopLogger(logger),
	)

	return pipeline.New(
		pipeline.NewTriage(triageCollab, store),
		pipeline.NewResolver(resolverCollab, store),
		loop,
		pipeline.WithNarrator(pipeline.NewNarrator(narratorCollab)),
		pipeline.WithScrubber(redact.New()),
		pipeline.WithRecorder(recorder),
		pipeline.WithPipelineLogger(logger),
	), nil
}

// rebuildWithStore builds a second pipeline sharing the app's toolsets
// and logger but reading from a different experience store. Used by the
// eval baseline, which must not see accumulated experience.
func rebuildWithStore(ctx context.Context, cfg *config.Config, a *app, store memory.Store) (*pipeline.Pipeline, error) {
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewLoopMetrics(ctx)
	if err != nil {
		return nil, err
	}
	return buildPipeline(provider, cfg, store, a.registry, metrics, a.logger)
}

// otlpHeaders merges explicit headers with basic auth credentials.
func otlpHeaders(cfg config.TelemetryConfig) map[string]string {
	if len(cfg.OTLPHeaders) == 0 && cfg.OTLPUser == "" {
		return nil
	}
	headers := make(map[string]string, len(cfg.OTLPHeaders)+1)
	for k, v := range cfg.OTLPHeaders {
		headers[k] = v
	}
	if cfg.OTLPUser != "" {
		headers["Authorization"] = "Basic " + basicAuth(cfg.OTLPUser, cfg.OTLPToken)
	}
	return headers
}
