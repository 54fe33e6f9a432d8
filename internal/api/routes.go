package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes. Health routes are registered by the
// server builder.
func SetupRoutes(router *gin.Engine, handler *Handler, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		listings := v1.Group("/listings")
		{
			listings.GET("/search", handler.Search)
			listings.POST("", handler.CreateListing)
			listings.GET("/:id", handler.GetListing)
			listings.PUT("/:id", handler.UpdateListing)
			listings.DELETE("/:id", handler.DeleteListing)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/reclassify", handler.Reclassify)
		}
	}
}
