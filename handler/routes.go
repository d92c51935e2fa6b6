package handler

import "github.com/gin-gonic/gin"

// Register mounts the health check and the versioned contract API on r.
func Register(r gin.IRouter, contracts *ContractHandler, health *HealthHandler) {
	r.GET("/health", health.Health)

	api := r.Group("/api/v1/contracts")
	{
		api.POST("/upload", contracts.Upload)
		api.GET("", contracts.List)
		api.GET("/:id", contracts.Get)
		api.GET("/:id/status", contracts.GetStatus)
	}
}
