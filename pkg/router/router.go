package router

import (
	"net/http"

	"adichat/backend/api"
	chatapi "adichat/backend/chat/api"
	"adichat/backend/internal/ws"
	"adichat/backend/pkg/config"
	"adichat/backend/pkg/di"
	"adichat/backend/pkg/errors"
	"adichat/backend/pkg/logger"
	"adichat/backend/pkg/middleware"
	"adichat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	limiters []*middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("invalid trusted proxies", "error", err)
	}

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(maxBodySize(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(r.Container.Telemetry.Handler()))

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	general := r.newLimiter(rate.Limit(r.Config.Security.RateLimit), r.Config.Security.RateLimitBurst)
	// completions are expensive upstream, one every two seconds per user with a small burst
	completions := r.newLimiter(rate.Limit(0.5), 3)

	apiGroup := r.Engine.Group("/api")
	apiGroup.Use(jwtAuth, general.Middleware())
	r.addOpenAPIValidation(apiGroup)

	chatapi.RegisterChatRoutes(apiGroup, chatapi.NewChatHandler(r.Container.ChatService), completions.Middleware())

	r.Engine.GET("/ws", jwtAuth, func(c *gin.Context) {
		ws.ServeWs(r.Container.Hub, c, middleware.UserID(c))
	})
}

// Close stops background work owned by the router
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

func (r *Router) newLimiter(limit rate.Limit, burst int) *middleware.RateLimiter {
	opts := middleware.DefaultRateLimiterOptions()
	opts.Limit = limit
	opts.Burst = burst
	l := middleware.NewRateLimiter(r.Logger, opts)
	r.limiters = append(r.limiters, l)
	return l
}

func (r *Router) addOpenAPIValidation(group *gin.RouterGroup) {
	v, err := validator.NewOpenAPIValidator(api.OpenAPISpec)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}
	group.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", api.OpenAPISpec)
	})
}

func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin != "" && set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
