package handler

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/replweb/pkg/auth"
)

// NewRouter 组装路由与中间件
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(h.cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if h.cfg.Otel.Enabled {
		r.Use(otelgin.Middleware("replweb"))
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.POST("/login",
			auth.LoginLimiter(h.cfg.Auth.LoginRate, h.cfg.Auth.LoginBurst),
			h.Login)

		// follower 用凭证头访问，不走 JWT
		repl := api.Group("/replication")
		{
			repl.GET("/transactions", h.Transactions)
			repl.GET("/snapshot", h.Snapshot)
		}

		admin := api.Group("")
		admin.Use(auth.Middleware(h.cfg.Auth.JWTSecret))
		{
			admin.POST("/jobs", h.CreateJob)
			admin.GET("/jobs", h.ListJobs)
			admin.POST("/emails", h.CreateEmail)
			admin.GET("/emails", h.ListEmails)
			admin.GET("/emails/errors", h.ListEmailErrors)
		}
	}
	return r
}
