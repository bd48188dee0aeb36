// Package http exposes the identity service over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/internal/interfaces/http/middleware"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine          *gin.Engine
	config          *config.Config
	logger          logger.Logger
	identityHandler *handlers.IdentityHandler
	healthHandler   *handlers.HealthHandler
	signLimiter     *middleware.SignRateLimiter
	metrics         *monitoring.Metrics
	gatherer        prometheus.Gatherer
	server          *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	identityHandler *handlers.IdentityHandler,
	healthHandler *handlers.HealthHandler,
	signLimiter *middleware.SignRateLimiter,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
) *Router {
	// 设置 Gin 模式
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:          gin.New(),
		config:          cfg,
		logger:          log.WithComponent("http"),
		identityHandler: identityHandler,
		healthHandler:   healthHandler,
		signLimiter:     signLimiter,
		metrics:         metrics,
		gatherer:        gatherer,
	}
	r.setupRoutes()
	// The server exists before Start so that a Stop racing ahead of Start still
	// marks it shut down; ListenAndServe then returns at once.
	r.server = &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        r.engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return r
}

// Handler returns the routed gin engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestContext())
	r.engine.Use(middleware.ObservabilityMiddleware(otel.Tracer(constants.ServiceName), r.metrics.HTTPRequests, r.metrics.HTTPDuration))
	r.engine.Use(middleware.AccessLog(r.logger))

	// CORS 配置
	if len(r.config.Server.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  r.config.Server.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", constants.HeaderRequestID, "traceparent"},
			ExposeHeaders: []string{constants.HeaderRequestID, "Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// 健康检查路由
	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/health/ready", r.healthHandler.HealthCheck)
	r.engine.GET("/health/live", r.healthHandler.LivenessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	// Pprof 性能分析（仅在非生产环境）
	if !r.config.Server.IsProduction() {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group(constants.APIVersionPrefix)
	{
		apps := v1.Group("/apps")
		if r.config.Registry.HTTPRegistration {
			apps.POST("", r.identityHandler.RegisterApp)
		}
		apps.GET("", r.identityHandler.ListApps)

		identities := apps.Group("/:app_id/identities")
		identities.POST("", r.identityHandler.CreateIdentity)
		identities.POST("/recoverable", r.identityHandler.CreateRecoverableIdentity)
		identities.POST("/recover", r.identityHandler.RecoverIdentity)
		identities.GET("/:key_id", r.identityHandler.GetIdentity)
		identities.DELETE("/:key_id", r.identityHandler.DeleteIdentity)
		identities.POST("/:key_id/revoke", r.identityHandler.RevokeIdentity)
		identities.POST("/:key_id/sign", r.signLimiter.Middleware(), r.identityHandler.Sign)
		identities.POST("/:key_id/tokens", r.signLimiter.Middleware(), r.identityHandler.IssueToken)

		credentials := v1.Group("/credentials")
		credentials.POST("/verify", r.identityHandler.Verify)
		credentials.POST("/tokens/verify", r.identityHandler.VerifyToken)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭。Stop 之后调用 Start 会立即返回 nil。
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
