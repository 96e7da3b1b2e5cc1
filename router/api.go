package router

import (
	"github.com/gin-gonic/gin"

	"github.com/andre-fig/backoffice/handlers"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Redirects *handlers.RedirectHandler
	Directory *handlers.DirectoryHandler
	Health    *handlers.HealthHandler
	Auth      *handlers.OperatorAuthMiddleware
}

func NewGinRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// PUBLIC ENDPOINTS
	if h.Health != nil {
		r.GET("/health", h.Health.Health)
	}

	// PROTECTED ENDPOINTS (operator token when a secret is configured)
	protected := r.Group("/")
	if h.Auth != nil {
		protected.Use(h.Auth.RequireOperator())
	}
	{
		protected.POST("/redirect/immediate", h.Redirects.RedirectImmediately)

		redirectRoutes := protected.Group("/redirects")
		{
			redirectRoutes.GET("", h.Redirects.ListRedirects)
			redirectRoutes.POST("/chats", h.Redirects.RedirectImmediately) // alias of /redirect/immediate

			redirectRoutes.POST("/scheduled", h.Redirects.CreateScheduledRedirect)
			redirectRoutes.GET("/scheduled/:id", h.Redirects.GetScheduledRedirect)
			redirectRoutes.DELETE("/scheduled/:id", h.Redirects.CancelScheduledRedirect)

			redirectRoutes.DELETE("/overrides/:sector/:destination", h.Redirects.RemoveActiveOverride)

			redirectRoutes.GET("/users/:userId/sectors", h.Redirects.ListUserSectors)

			redirectRoutes.GET("/reconciliation", h.Redirects.GetReconciliation)
			redirectRoutes.POST("/reconciliation/run", h.Redirects.RunReconciliation)

			redirectRoutes.DELETE("/:id", h.Redirects.RemoveRedirect)
			redirectRoutes.PATCH("/:id/end-date", h.Redirects.UpdateEndDate)
		}

		if h.Directory != nil {
			protected.GET("/directory/users", h.Directory.ListUsers)
		}
	}

	return r
}
