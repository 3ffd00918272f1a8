package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskforge/conductor/agent"
	"github.com/taskforge/conductor/config"
	"github.com/taskforge/conductor/llm"
	"github.com/taskforge/conductor/model"
	"github.com/taskforge/conductor/orchestrator"
	"github.com/taskforge/conductor/reviewer"
	"github.com/taskforge/conductor/sandbox"
	"github.com/taskforge/conductor/worker"
)

// rootFlags are the persistent flags every subcommand reads from.
type rootFlags struct {
	configPath string
	natsURL    string
}

// app bundles the wiring every subcommand needs: a configured orchestrator
// plus the worker and reviewer runners RunBlueprint takes. Built once per
// invocation from the root flags, the same way cmd/semspec's NewApp builds
// its component set from a loaded Config.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	worker       *worker.Runner
	reviewer     *reviewer.Runner
	natsClient   *natsclient.Client
}

// newApp loads configuration, wires the LLM client through the global model
// registry (mirroring processor/developer/component.go's registry :=
// model.Global(); llm.NewClient(registry, ...) idiom), and constructs the
// orchestrator facade. It only connects to NATS when a URL is given by
// --nats-url or, failing that, by the config's nats.url:
// cmd/semspec embeds a NATS server for zero-config startup, but that
// dependency (nats-server/v2) is absent from this module's go.mod, so this
// CLI does not introduce it. Without either URL, events are only published
// on the in-process channel RunBlueprint returns.
func newApp(ctx context.Context, flags rootFlags) (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var cfg *config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFromFile(flags.configPath)
	} else {
		cfg = config.DefaultConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := model.Global()
	llmClient := llm.NewClient(registry, llm.WithLogger(logger), llm.WithCallStore(llm.GlobalCallStore()))

	workerAgent := agent.NewRunner(llmClient, logger)
	reviewerAgent := agent.NewRunner(llmClient, logger)

	w := worker.New(workerAgent, logger)
	if outputDir := cfg.Sandbox.BaseDir; outputDir != "" {
		store, err := sandbox.NewOutputStore(filepath.Join(outputDir, "output"), cfg.Sandbox.OutputThresholdB)
		if err != nil {
			return nil, fmt.Errorf("init output store: %w", err)
		}
		if err := store.GC(cfg.OutputGCAge()); err != nil {
			logger.Warn("output store GC", "error", err)
		}
		w = w.WithOutputStore(store)
	}
	rv := reviewer.New(reviewerAgent, logger).WithTimeout(cfg.ReviewTimeout())

	var natsClient *natsclient.Client
	natsURL := flags.natsURL
	if natsURL == "" {
		natsURL = cfg.NATS.URL
	}
	if natsURL != "" {
		natsClient, err = natsclient.NewClient(natsURL,
			natsclient.WithName("conductor"),
			natsclient.WithMaxReconnects(5),
			natsclient.WithReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("create NATS client: %w", err)
		}
		if err := natsClient.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := natsClient.WaitForConnection(connCtx); err != nil {
			return nil, fmt.Errorf("NATS connection timeout: %w", err)
		}
	}

	orch := orchestrator.New(cfg, natsClient, logger, prometheus.DefaultRegisterer)

	return &app{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orch,
		worker:       w,
		reviewer:     rv,
		natsClient:   natsClient,
	}, nil
}

// close releases the NATS connection, if one was opened.
func (a *app) close(ctx context.Context) {
	if a.natsClient != nil {
		_ = a.natsClient.Close(ctx)
	}
}
