// Command toolbridge runs the protocol bridge over stdio, exposing a
// catalog of scientific-database tools to agent clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sciforge/toolbridge/annotations"
	"github.com/sciforge/toolbridge/auth"
	"github.com/sciforge/toolbridge/config"
	"github.com/sciforge/toolbridge/discovery"
	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/hook"
	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/registry"
	"github.com/sciforge/toolbridge/server"
	"github.com/sciforge/toolbridge/transport/stdio"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "toolbridge:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug|info|warn|error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := logx.NewDefaultLogger()
	logger.SetLevel(logx.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := registry.New(registry.WithLogger(logger))
	resolver := annotations.NewResolver(cfg.Annotations.Tables())

	eng := engine.New(
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithQueueSize(cfg.Engine.QueueSize),
		engine.WithDefaultTimeout(cfg.Engine.CallTimeout.Duration),
		engine.WithLogger(logger),
	)
	defer eng.Close()

	var artifacts *hook.ArtifactStore
	if cfg.Artifacts.Path != "" {
		artifacts, err = hook.NewArtifactStore(cfg.Artifacts.Path, cfg.Artifacts.TTL.Duration, logger)
		if err != nil {
			return fmt.Errorf("opening artifact store: %w", err)
		}
		defer artifacts.Close()
		if cfg.Artifacts.CleanupSchedule != "" {
			if err := artifacts.StartCleanup(cfg.Artifacts.CleanupSchedule); err != nil {
				return fmt.Errorf("starting artifact cleanup: %w", err)
			}
		}
	}

	transport := stdio.New(stdio.WithLogger(logger))
	defer transport.Close()

	serverOpts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithTransport(transport),
		server.WithPublishFilter(cfg.Publish.Filter()),
	}
	if artifacts != nil {
		serverOpts = append(serverOpts, server.WithArtifactStore(artifacts))
	}
	if cfg.Auth.Enabled {
		validator, err := auth.NewJWKSTokenValidator(auth.JWKSConfig{
			JWKSURL:          cfg.Auth.JWKSURL,
			ExpectedIssuer:   cfg.Auth.Issuer,
			ExpectedAudience: cfg.Auth.Audience,
			ClockSkew:        cfg.Auth.ClockSkew.Duration,
		}, nil)
		if err != nil {
			return fmt.Errorf("configuring auth: %w", err)
		}
		var checker auth.PermissionChecker = auth.AllowAll{}
		if cfg.Auth.WriteScope != "" || cfg.Auth.DestructiveScope != "" {
			checker = auth.ScopeChecker{
				WriteScope:       cfg.Auth.WriteScope,
				DestructiveScope: cfg.Auth.DestructiveScope,
			}
		}
		serverOpts = append(serverOpts, server.WithAuth(validator, checker))
	}

	srv := server.NewServer(store, resolver, eng, serverOpts...)

	rules := make([]hook.Rule, 0, len(cfg.Hooks))
	for _, rc := range cfg.Hooks {
		rules = append(rules, hook.Rule{
			Name:     rc.Name,
			Type:     hook.Type(rc.Type),
			Priority: rc.Priority,
			Conditions: hook.Conditions{
				MinOutputLength: rc.Conditions.MinOutputLength,
				Tools:           rc.Conditions.Tools,
			},
			Config: rc.Config,
		})
	}
	pipelineOpts := []hook.PipelineOption{
		hook.WithLogger(logger),
		hook.WithInvoker(srv),
		hook.WithNestedTimeout(cfg.Engine.NestedCallTimeout.Duration),
	}
	if artifacts != nil {
		pipelineOpts = append(pipelineOpts, hook.WithArtifactStore(artifacts))
	}
	pipeline, err := hook.NewPipeline(rules, pipelineOpts...)
	if err != nil {
		return fmt.Errorf("building hook pipeline: %w", err)
	}
	srv.AttachPipeline(pipeline)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if err := srv.Load(builtinCatalog(httpClient, cfg.Discovery.OpenAIAPIKey)); err != nil {
		logger.Warn("some tools failed to load", "error", err)
	}

	finderOpts := []discovery.FinderOption{
		discovery.WithLogger(logger),
		discovery.WithAdvancedSearch(cfg.Discovery.AdvancedSearch),
	}
	if cfg.Discovery.AdvancedSearch && cfg.Discovery.OpenAIAPIKey != "" {
		embedder := discovery.NewOpenAIEmbedder(cfg.Discovery.OpenAIAPIKey,
			openai.EmbeddingModel(cfg.Discovery.EmbeddingModel))
		index, err := discovery.BuildIndex(ctx, store, embedder)
		if err != nil {
			logger.Warn("embedding index unavailable, discovery will fall back to keyword matching", "error", err)
		} else {
			finderOpts = append(finderOpts, discovery.WithIndex(index))
		}
		finderOpts = append(finderOpts,
			discovery.WithRanker(discovery.NewOpenAIRanker(cfg.Discovery.OpenAIAPIKey, cfg.Discovery.RankerModel)))
	}
	srv.AttachFinder(discovery.NewFinder(store, finderOpts...))

	return srv.Run(ctx)
}
