package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/embedders"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/logger"
	"github.com/we11as22/deepresearch/pkg/memory"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/orchestrator"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/search"
	"github.com/we11as22/deepresearch/pkg/searchsvc"
	"github.com/we11as22/deepresearch/pkg/server"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// ServeCmd starts the HTTP/WebSocket server.
type ServeCmd struct {
	Host string `help:"Bind address (overrides config)."`
	Port int    `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	// CLI flags win over config file settings.
	logLevel := cfg.LogLevel
	if cli.LogLevel != "" {
		logLevel = cli.LogLevel
	}
	logFormat := cfg.LogFormat
	if cli.LogFormat != "" {
		logFormat = cli.LogFormat
	}
	log := logger.Init(logger.Options{Level: logLevel, Format: logFormat})

	if cfg.Server.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, "deepresearch", cfg.Server.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	pool := config.NewDBPool()
	defer pool.Close()
	db, err := pool.Get(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sessions, err := session.NewManager(ctx, db, cfg.Database.DriverName())
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	sessions.StartCleanupLoop(ctx, time.Hour,
		time.Duration(cfg.Research.SessionExpiryHours)*time.Hour)

	provider, err := llms.NewFromConfig(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	// The embedder reranks search results and powers cross-session memory;
	// without an API key both degrade gracefully.
	var embedder embedders.Embedder
	if cfg.Embedder.APIKey != "" {
		embedder = embedders.NewOpenAIEmbedder(&cfg.Embedder)
	} else {
		log.Info("no embedder configured, reranking and cross-session memory disabled")
	}

	webSearch, err := search.NewService(&cfg.Search, embedder)
	if err != nil {
		return fmt.Errorf("init search: %w", err)
	}
	sc := scraper.New(time.Duration(cfg.Search.ScrapeTimeout) * time.Second)
	searchSvc := searchsvc.New(provider, webSearch, sc, &cfg.Research)

	var memStore *memory.Store
	if embedder != nil {
		memStore, err = memory.NewStore(filepath.Join(cfg.Research.MemoryRoot, "memory"), embedder)
		if err != nil {
			return fmt.Errorf("init memory store: %w", err)
		}
	}

	orch := orchestrator.New(orchestrator.Deps{
		LLM:       provider,
		SearchSvc: searchSvc,
		WebSearch: webSearch,
		Scraper:   sc,
		Sessions:  sessions,
		Files:     agentfs.NewStore(cfg.Research.MemoryRoot),
		Memory:    memStore,
		Config:    &cfg.Research,
	})

	engine := server.NewEngine(provider, sessions, searchSvc, orch, streaming.NewHub(), cfg)
	srv := server.New(&cfg.Server, engine)

	log.Info("starting server",
		"host", cfg.Server.Host, "port", cfg.Server.Port,
		"llm", cfg.LLM.Model, "db", cfg.Database.DriverName())
	return srv.Start(ctx)
}
