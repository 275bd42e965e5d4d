package router

import (
	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health check endpoints
func (r *Router) setupHealthRoutes() {
	handler := r.Container.Health.Handler()

	r.Engine.GET("/health", func(c *gin.Context) {
		// checks otherwise only run on the checker's own period
		r.Container.Health.RunChecks(c.Request.Context())
		handler(c)
	})
	r.Engine.GET("/api/health", handler)
}
