package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/artifacts"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/llm"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/observability"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/workspace"
)

// runtime is the wired substrate behind one CLI invocation.
type runtime struct {
	service *workspace.Service
	closers []func(context.Context) error
}

func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newRuntime wires the event store, archive, telemetry and generator from
// cfg. fixtures serve generation when no LLM key is configured.
func newRuntime(ctx context.Context, cfg *config.Config, profile *config.Profile, fixtures *generator.FixtureGenerator, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(ctx)
		}
	}()

	store, err := eventlog.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		rt.closers = append(rt.closers, func(context.Context) error { return c.Close() })
	}
	if cfg.RedisAddr != "" {
		snapshots := eventlog.NewRedisSnapshotStore(cfg.RedisAddr, "", 0)
		rt.closers = append(rt.closers, func(context.Context) error { return snapshots.Close() })
		store = eventlog.Compose(store, snapshots)
		logger.Info("snapshots cached in redis", "addr", cfg.RedisAddr)
	}

	blobs, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		rt.closers = append(rt.closers, func(context.Context) error { return c.Close() })
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Enabled = cfg.OTelEnabled
	if cfg.OTelEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.closers = append(rt.closers, obs.Shutdown)

	var gen generator.Generator = fixtures
	if cfg.LLMAPIKey != "" {
		client := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMModel, llm.WithBaseURL(cfg.LLMServiceURL))
		gen = generator.NewLLMGenerator(client,
			generator.WithRateLimit(profile.Generator.RequestsPerSecond, profile.Generator.Burst),
			generator.WithTemperature(profile.Generator.Temperature),
		)
		logger.Info("generating with llm", "model", cfg.LLMModel, "url", cfg.LLMServiceURL)
	}

	factory := workspace.NewFactory(workspace.SharedStore(store), gen,
		orchestrator.WithProfile(profile),
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
		orchestrator.WithObservability(obs),
		orchestrator.WithArchive(artifacts.NewArchive(blobs)),
	)
	registry := workspace.NewRegistry(factory, logger)
	rt.closers = append(rt.closers, func(context.Context) error { registry.Close(); return nil })
	rt.service = workspace.NewService(registry, workspace.WithServiceLogger(logger))
	return rt, nil
}
