package api

import (
	"context"

	routes "noisemap/internal/api/handlers"
	"noisemap/internal/noisemap"
	"noisemap/internal/service/result"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// SetupRouter initializes all application routes
func SetupRouter(ctx context.Context, r *gin.Engine, config map[string]string, noise *noisemap.PointNoiseMap, results *result.ResultService, gatherer prometheus.Gatherer) {
	// API group
	api := r.Group("/api")

	// Setup main handlers
	routes.SetupMainHandlers(r.Group(""), config, gatherer)

	// Setup run and cell handlers
	routes.SetupRunHandlers(ctx, api, noise, results)
	routes.SetupCellHandlers(api, noise)
}
