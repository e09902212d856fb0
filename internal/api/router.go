package api

import (
	"pulsehub/internal/metrics"
	"pulsehub/internal/middleware"
	"pulsehub/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Env       string
	JWTSecret []byte
	RateLimit middleware.RateLimiterConfig
}

func RegisterRoutes(topicHandler *TopicHandler, streamHandler *StreamHandler, authHandler *AuthHandler, clients repository.ClientRepository, rdb *redis.Client, cfg RouterConfig) *gin.Engine {
	r := gin.New()

	devMode := cfg.Env == "dev" || cfg.Env == "loadtest"

	r.Use(
		middleware.CorsMiddleware(),
		middleware.TraceMiddleware(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", topicHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	authProtected := r.Group("/v1/auth")
	authProtected.Use(middleware.JWTMiddleware(cfg.JWTSecret, devMode))
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	// Read side, open to any holder of a valid key
	stream := r.Group("/v1/stream")
	stream.Use(middleware.APIKeyMiddleware(clients))
	{
		stream.GET("/watch", streamHandler.Watch)
		stream.GET("/ws", streamHandler.WatchWS)
		stream.GET("/snapshot", streamHandler.Snapshot)
	}

	topics := r.Group("/v1")
	topics.Use(middleware.APIKeyMiddleware(clients))
	{
		topics.GET("/topics", topicHandler.ListTopics)
		topics.GET("/topics/:id/latest", topicHandler.Latest)
		topics.POST("/ingest", middleware.RateLimitMiddleware(rdb, cfg.RateLimit), topicHandler.Ingest)
		topics.POST("/ingest/batch", middleware.RateLimitMiddleware(rdb, cfg.RateLimit), topicHandler.IngestBatch)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.JWTMiddleware(cfg.JWTSecret, devMode), middleware.RequireAdmin())
	{
		admin.GET("/stream", streamHandler.AdminWatch)
		admin.GET("/catalog", topicHandler.Catalog)
	}
	return r
}
