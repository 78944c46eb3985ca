// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"counsellor/db"
	"counsellor/monitoring"
	"counsellor/registry"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	RateLimit      int // 每分钟每IP
	MaxBodyBytes   int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		RateLimit:      120,
		MaxBodyBytes:   1 << 20,
	}
}

// Deps 处理器依赖
type Deps struct {
	Registry *registry.Registry
	Store    *db.Store // 可为空, 用户推荐与评估日志接口返回 503
	Metrics  *monitoring.Metrics
	Hub      *monitoring.Hub
	Reload   ReloadFunc // 可为空
	Logger   *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("http")

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, deps),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// NewHandler 构建路由与中间件链
func NewHandler(config ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("http")

	mux := http.NewServeMux()
	h := &handlers{
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
	}
	h.register(mux)
	if deps.Reload != nil {
		mux.Handle("POST /api/models/reload", withRoute("POST /api/models/reload", handleReload(deps.Reload, h)))
	}
	if deps.Hub != nil {
		mux.Handle("GET /api/ws/models", withRoute("GET /api/ws/models", deps.Hub))
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", withRoute("GET /metrics", deps.Metrics.Handler()))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                 // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger, deps.Metrics),     // 2. 日志中间件
		SecurityHeadersMiddleware,                  // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RateLimitMiddleware(config.RateLimit),      // 5. 限流中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 6. 请求大小限制
		TimeoutMiddleware(config.Timeout),          // 7. 超时中间件
	)
	return chain(mux)
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
