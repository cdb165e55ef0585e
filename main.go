package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/sqlmend/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/sqlmend/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/sqlmend/pkg/config"
	"github.com/ekaya-inc/sqlmend/pkg/handlers"
	"github.com/ekaya-inc/sqlmend/pkg/llm"
	"github.com/ekaya-inc/sqlmend/pkg/logging"
	"github.com/ekaya-inc/sqlmend/pkg/mcp"
	"github.com/ekaya-inc/sqlmend/pkg/mcp/tools"
	"github.com/ekaya-inc/sqlmend/pkg/middleware"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/search"
	"github.com/ekaya-inc/sqlmend/pkg/services"
	"github.com/ekaya-inc/sqlmend/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("datasource", cfg.Datasource.Type),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("redis_sessions", cfg.Redis.Host != ""))

	if err := run(cfg, logger); err != nil {
		// Connection errors can echo the DSN; scrub before logging.
		logger.Fatal("startup failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsConfig := cfg.Datasource.Map()

	discoverFactory, err := datasource.GetSchemaDiscovererFactory(cfg.Datasource.Type)
	if err != nil {
		return err
	}
	rawDiscoverer, err := discoverFactory(ctx, dsConfig, logger)
	if err != nil {
		return fmt.Errorf("connect schema discoverer: %w", err)
	}
	discoverer, err := datasource.NewCachedDiscoverer(rawDiscoverer, datasource.CacheOptions{
		TTL:      time.Duration(cfg.Datasource.MetadataCacheTTLMinutes) * time.Minute,
		Capacity: cfg.Datasource.MetadataCacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("wrap discoverer cache: %w", err)
	}
	defer discoverer.Close() // closes the wrapped discoverer too

	executorFactory, err := datasource.GetQueryExecutorFactory(cfg.Datasource.Type)
	if err != nil {
		return err
	}
	executor, err := executorFactory(ctx, dsConfig, logger)
	if err != nil {
		return fmt.Errorf("connect query executor: %w", err)
	}
	defer executor.Close()

	chatClient, err := llm.NewChatClient(&llm.Config{
		Provider: cfg.AI.Provider,
		Endpoint: cfg.AI.ChatEndpoint(),
		Model:    cfg.AI.Model,
		APIKey:   cfg.AI.APIKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}

	embedClient, err := llm.NewEmbeddingClient(&llm.Config{
		Endpoint: cfg.AI.EffectiveEmbeddingEndpoint(),
		Model:    cfg.AI.EmbeddingModel,
		APIKey:   cfg.AI.EffectiveEmbeddingAPIKey(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}

	semantic, err := search.NewSemanticProvider(llm.EmbeddingFuncFor(embedClient, cfg.AI.EmbeddingModel), logger)
	if err != nil {
		return fmt.Errorf("create semantic index: %w", err)
	}
	lexical, err := search.NewLexicalProvider(logger)
	if err != nil {
		return fmt.Errorf("create lexical index: %w", err)
	}
	glossary, err := search.LoadKeywordGlossary(cfg.KeywordGlossaryPath)
	if err != nil {
		return err
	}
	keyword := search.NewKeywordProvider(glossary, logger)
	values := search.NewDataValueProvider(search.DataValueOptions{
		MaxColumns:     cfg.Search.ValueIndexMaxColumns,
		ValuesPerCol:   cfg.Search.ValueIndexValuesPerCol,
		MaxValueLength: cfg.Search.ValueIndexMaxValueLength,
	}, logger)

	indexer := services.NewSchemaIndexer(discoverer, services.IndexTargets{
		Semantic: semantic,
		Lexical:  lexical,
		Values:   values,
	}, logger)
	if err := indexer.Build(ctx); err != nil {
		return fmt.Errorf("build schema indexes: %w", err)
	}

	searcher := search.NewHybridSearcher([]search.CandidateSourceProvider{
		semantic, lexical, keyword, values,
	}, cfg.Search.TopK, logger)
	fusion := search.NewFusion(search.Thresholds{
		Semantic:  cfg.Search.SemanticThreshold,
		Lexical:   cfg.Search.LexicalThreshold,
		Keyword:   cfg.Search.KeywordThreshold,
		DataValue: cfg.Search.DataValueThreshold,
	}, cfg.Search.BoostPrefixes, logger)

	loader := schema.NewLoader(cfg.GraphSnapshotPath, datasource.FkEdges(discoverer), logger)
	builder := schema.NewPoolBuilder(schema.NewPathFinder(logger), datasource.NewCatalogProvider(discoverer), schema.PoolOptions{
		DefaultSchema:   cfg.Datasource.DefaultSchema,
		MaxHops:         cfg.Resolver.MaxPathHops,
		MaxExtraColumns: cfg.Resolver.MaxExtraColumns,
	}, logger)

	resolver := services.NewResolutionService(searcher, fusion, loader, builder, glossary, cfg.Resolver.SuggestionLimit, logger)

	store, err := services.NewRedisStore(&cfg.Redis, cfg.Resolver.HistoryLimit, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if store != nil {
		defer store.Close()
	}
	sessions := services.NewSessionManager(cfg.Resolver.HistoryLimit, cfg.Resolver.PathCacheLimit, store, logger)
	go pruneSessions(ctx, sessions, logger)

	generation := services.NewGenerationService(resolver, sql.NewAutoFixer(logger), chatClient, executor, sessions, services.GenerationOptions{
		Temperature:       cfg.AI.Temperature,
		MaxRepairAttempts: cfg.AI.MaxRepairAttempts,
	}, logger)

	auth, err := middleware.NewBearerAuth(&cfg.Auth, logger)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(generation, logger).RegisterRoutes(mux, auth)
	handlers.RegisterMetrics(mux)

	mcpServer := mcp.NewServer("sqlmend", cfg.Version, logger)
	tools.RegisterAll(mcpServer.MCP(), &tools.Deps{
		Resolution: resolver,
		Generation: generation,
		Logger:     logger,
	}, cfg.Version)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, auth)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting sqlmend", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// pruneSessions drops sessions idle for over an hour. The check runs
// every ten minutes until shutdown.
func pruneSessions(ctx context.Context, sessions *services.SessionManager, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.PruneIdle(time.Hour); n > 0 {
				logger.Debug("pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}
