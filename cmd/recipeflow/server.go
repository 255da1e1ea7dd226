package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/BaSui01/recipeflow/api/handlers"
	"github.com/BaSui01/recipeflow/config"
	"github.com/BaSui01/recipeflow/internal/cache"
	"github.com/BaSui01/recipeflow/internal/database"
	"github.com/BaSui01/recipeflow/internal/metrics"
	"github.com/BaSui01/recipeflow/internal/migration"
	"github.com/BaSui01/recipeflow/internal/server"
	"github.com/BaSui01/recipeflow/internal/telemetry"
	"github.com/BaSui01/recipeflow/internal/turnlog"
	"github.com/BaSui01/recipeflow/llm"
	"github.com/BaSui01/recipeflow/llm/embedding"
	"github.com/BaSui01/recipeflow/llm/providers/anthropic"
	"github.com/BaSui01/recipeflow/llm/rerank"
	"github.com/BaSui01/recipeflow/llm/selfquery"
	"github.com/BaSui01/recipeflow/llm/tokenizer"
	"github.com/BaSui01/recipeflow/llm/tools"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 RecipeFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	docsHandler   *handlers.DocsHandler
	tunersHandler *handlers.TunersHandler
	turnsHandler  *handlers.TurnsHandler

	// 指标与遥测
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	// 外部依赖
	cacheManager *cache.Manager
	dbPool       *database.PoolManager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务。失败时已初始化的资源由调用方通过 Shutdown 释放。
func (s *Server) Start() error {
	// 1. 遥测与指标
	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	s.telemetry = tp
	s.metricsCollector = metrics.NewCollector("recipeflow", s.logger)

	// 2. 审计日志数据库
	recorder, err := s.initTurnLog()
	if err != nil {
		return fmt.Errorf("failed to init turn log: %w", err)
	}

	// 3. Handlers
	if err := s.initHandlers(recorder); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. Metrics 服务器
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	metricsAddr := "shared"
	if s.metricsManager != nil {
		metricsAddr = s.metricsManager.Addr()
	}
	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", metricsAddr),
		zap.Bool("audit_enabled", s.cfg.Database.Enabled),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initTurnLog 打开审计库并按需执行迁移；未启用时返回 NopRecorder
func (s *Server) initTurnLog() (turnlog.Recorder, error) {
	dbCfg := s.cfg.Database
	if !dbCfg.Enabled {
		s.logger.Info("Turn audit log disabled")
		return turnlog.NopRecorder{}, nil
	}

	if dbCfg.AutoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(context.Background())
		m.Close()
		if err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	pool, err := database.Open(dbCfg, s.metricsCollector, s.logger)
	if err != nil {
		return nil, err
	}
	s.dbPool = pool

	s.logger.Info("Turn audit log enabled", zap.String("driver", dbCfg.Driver))
	return turnlog.NewGormRecorder(pool.DB(), dbCfg.Driver, s.metricsCollector, s.logger), nil
}

// initHandlers 组装检索管线、工具与对话循环，并创建所有 handlers
func (s *Server) initHandlers(recorder turnlog.Recorder) error {
	ctx := context.Background()
	cfg := s.cfg

	s.healthHandler = handlers.NewHealthHandler(version(), s.logger)

	// 嵌入缓存（可选）
	if cfg.Redis.Enabled {
		cm, err := cache.NewManager(cfg.Redis, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cacheManager = cm
		s.healthHandler.RegisterCheck(handlers.NewCheck("redis", cm.Ping))
	}

	embedCfg := cfg.Embedding
	embedCfg.Logger = s.logger
	embedder, err := embedding.New(ctx, embedCfg, s.cacheManager, s.metricsCollector)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	scorer, err := rerank.New(cfg.Reranker)
	if err != nil {
		return fmt.Errorf("create reranker: %w", err)
	}

	store := rag.NewQdrantStore(cfg.Qdrant, nil, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewCheck("qdrant", func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	}))

	selfQuery := &selfquery.Factory{
		OpenAI: cfg.SelfQuery.OpenAI,
		Azure:  cfg.SelfQuery.Azure,
		Gemini: cfg.SelfQuery.Gemini,
		Logger: s.logger,
	}

	rc := &rag.RetrieverContext{
		Store:        store,
		Embedder:     embedder,
		Scorer:       scorer,
		Constructors: selfQuery.Build,
		Schema:       rag.RecipeMetadataSchema(),
		Reranker:     cfg.Reranker.RerankerConfig(),
		Observer:     s.metricsCollector,
		Logger:       s.logger,
	}
	retrievers := func(rcfg types.RetrievalConfig) (rag.Retriever, error) {
		return rag.BuildRetriever(rc, rcfg)
	}

	// 对话主模型
	provider := anthropic.NewProvider(cfg.LLM, s.logger)
	model := cfg.LLM.Model
	tok := tokenizer.ForModel(model, s.logger)

	// 网页搜索（可选）：未配置时工具仍然公布，调用返回 is_error 结果
	webSearch := tools.WebSearchToolConfig{
		NumResults:     cfg.Search.Google.NumResults,
		MaxConcurrency: cfg.Agent.QueryConcurrency,
	}
	if google, err := tools.NewGoogleSearch(cfg.Search.Google, s.logger); err != nil {
		s.logger.Warn("Web search disabled", zap.Error(err))
	} else {
		webSearch.Provider = google
		webSearch.Fetcher = tools.NewPageFetcher(cfg.Search.Fetcher, tok, s.logger)
	}

	toolbox := &tools.Toolbox{
		RecipeDB: tools.RecipeDBConfig{
			MaxConcurrency:  cfg.Agent.QueryConcurrency,
			MaxOutputTokens: cfg.Agent.MaxToolOutputTokens,
			Tokenizer:       tok,
		},
		WebSearch:      webSearch,
		MaxConcurrency: cfg.Agent.ToolConcurrency,
		Observer:       s.metricsCollector,
		Logger:         s.logger,
	}

	runner := tools.NewConversationRunner(provider, toolbox.Executor, cfg.Agent.RunnerConfig, s.logger).
		WithLLMObserver(s.metricsCollector)

	instruments, err := telemetry.NewTurnInstruments(nil)
	if err != nil {
		s.logger.Warn("Turn instruments unavailable", zap.Error(err))
	}

	s.chatHandler = handlers.NewChatHandler(handlers.ChatConfig{
		Runner:         runner,
		Retrievers:     retrievers,
		Defaults:       cfg.Retrieval,
		Recorder:       recorder,
		Observer:       s.metricsCollector,
		Instruments:    instruments,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		OriginPatterns: originPatterns(cfg.Server.CORSAllowedOrigins),
	}, s.logger)

	s.docsHandler = handlers.NewDocsHandler(retrievers, cfg.Retrieval, cfg.Agent.QueryConcurrency, cfg.Server.MaxBodyBytes, s.logger)
	s.tunersHandler = handlers.NewTunersHandler(llm.NewTunerGenerator(provider, s.logger), model, cfg.Retrieval, cfg.Server.MaxBodyBytes, s.logger)
	s.turnsHandler = handlers.NewTurnsHandler(recorder, s.logger)

	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("database", s.dbPool.Ping))
	}

	s.logger.Info("Handlers initialized",
		zap.String("model", model),
		zap.String("embedding", embedder.Name()),
		zap.Bool("web_search", webSearch.Provider != nil),
	)
	return nil
}

// originPatterns 把 CORS 来源转换为 WebSocket 握手允许的 host 模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 注册路由、构建中间件链并启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion)

	// 对话 API
	mux.HandleFunc("POST /api/v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("POST /api/v1/chat/stream", s.chatHandler.HandleStream)
	mux.HandleFunc("GET /api/v1/chat/ws", s.chatHandler.HandleWebSocket)
	mux.HandleFunc("POST /api/v1/docs/query", s.docsHandler.HandleQuery)
	mux.HandleFunc("POST /api/v1/tuners", s.tunersHandler.HandleTuners)
	mux.HandleFunc("GET /api/v1/turns", s.turnsHandler.HandleRecent)

	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	skipAuthPaths := []string{"/health", "/ready", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	switch auth := s.cfg.Auth; {
	case auth.JWT.Enabled():
		chain = append(chain, JWTAuth(auth.JWT, skipAuthPaths, s.logger))
	case len(auth.APIKeys) > 0:
		chain = append(chain, APIKeyAuth(auth.APIKeys, skipAuthPaths, auth.AllowQueryAPIKey, s.logger))
	default:
		s.logger.Warn("Authentication disabled: no API keys or JWT configured")
	}
	chain = append(chain, RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))

	handler := Chain(mux, chain...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager("http", handler, serverConfig, s.logger)
	s.httpManager.RegisterOnShutdown(s.chatHandler.Shutdown)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口提供 /metrics
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	var managers []*server.Manager
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			managers = append(managers, m)
		}
	}
	server.WaitForShutdown(context.Background(), s.logger, managers...)

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。可在部分初始化失败后调用。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，等待进行中的对话与审计写入
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 刷新遥测
	if s.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		cancel()
	}

	// 4. 关闭数据库与缓存连接
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
