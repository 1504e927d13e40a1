package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/llm"
	"github.com/sandevgo/tuskmem/internal/providers/mcp"
	"github.com/sandevgo/tuskmem/internal/providers/rag"
	"github.com/sandevgo/tuskmem/internal/providers/tools"
	"github.com/sandevgo/tuskmem/internal/service/agent"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/storage/backend"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/retry"
	"github.com/sandevgo/tuskmem/pkg/srv"
)

// storageApp is enough for commands that only read or edit stored state.
type storageApp struct {
	cfg      *config.AppConfig
	store    core.Store
	memory   *memory.Memory
	services []srv.Service
}

// agentApp adds the model, tools and the background indexer.
type agentApp struct {
	*storageApp
	memCfg   *config.MemoryConfig
	provider *config.ProviderConfig
	models   *llm.DynamicProvider
	tools    *dispatch.Dispatcher
	mcp      *mcp.Source
	worker   *memory.EmbedderWorker
	engine   *agent.Engine
}

func newStorageApp(ctx context.Context) (*storageApp, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}

	cfg := config.NewAppConfig(ctx)
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &storageApp{
		cfg:      cfg,
		store:    store,
		memory:   memory.NewMemory(store, nil, memory.NewSysPrompt(cfg), nil),
		services: []srv.Service{srv.NewCleanup("storage", store.Close)},
	}, nil
}

func newAgentApp(ctx context.Context) (*agentApp, error) {
	base, err := newStorageApp(ctx)
	if err != nil {
		return nil, err
	}
	logger := log.FromCtx(ctx)

	app := &agentApp{
		storageApp: base,
		memCfg:     config.NewMemoryConfig(ctx),
		provider:   config.NewProviderConfig(ctx),
		tools:      dispatch.New(),
	}

	// 1. Model
	app.models, err = llm.NewDynamicProvider(ctx, app.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	// 2. Semantic index and token budgeting
	tokenizer := rag.NewTokenizer(ctx)
	index, err := initIndex(ctx, app.store, tokenizer)
	if err != nil {
		logger.Warn().Err(err).Msg("semantic recall disabled")
	}
	app.memory = memory.NewMemory(app.store, index, memory.NewSysPrompt(app.cfg), tokenizer)

	var indexer agent.Indexer
	if index != nil {
		app.worker = memory.NewEmbedderWorker(app.store, index, app.memCfg.EmbedInterval, app.memCfg.EmbedBatchSize)
		app.services = append(app.services, app.worker)
		indexer = app.worker
	}

	// 3. Tools
	builtin, err := tools.Register(app.tools, config.NewToolsConfig(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	app.services = append(app.services, srv.NewCleanup("tools", builtin.Close))
	app.mcp = mcp.NewSource(
		mcp.NewRegistry(mcp.NewFileStorage(app.cfg.GetMCPConfigPath())),
		mcp.NewPool(),
		app.tools,
	)
	if err := app.mcp.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("mcp servers unavailable")
	} else {
		app.services = append(app.services, app.mcp)
	}

	// 4. Engine
	app.engine, err = agent.NewEngine(app.models, app.memory, app.store, app.tools, indexer, agent.NewConfig(app.memCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	return app, nil
}

func initIndex(ctx context.Context, store core.Store, tokenizer rag.Tokenizer) (*memory.Index, error) {
	cfg := config.NewEmbeddingConfig(ctx)
	if cfg.APIKey == "" && cfg.Provider != config.ProviderOllama {
		return nil, fmt.Errorf("TUSK_EMBEDDING_API_KEY is not set")
	}

	embedder, err := llm.NewEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chunker := rag.NewChunker(tokenizer, rag.ChunkerConfig{
		MaxTokens:     cfg.MaxTokens,
		OverlapTokens: rag.DefaultChunkerConfig().OverlapTokens,
	})
	retryCfg := retry.NewDefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.FromCtx(ctx).Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("embedding request failed, retrying")
	}
	return memory.NewIndex(store, rag.NewChunkedEmbedder(embedder, chunker), retry.NewRetrier(retryCfg)), nil
}

// drain indexes what the last turn committed before a one-shot command exits.
func (a *agentApp) drain(ctx context.Context) {
	if a.worker == nil {
		return
	}
	if err := a.worker.Drain(ctx); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to index new messages")
	}
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
