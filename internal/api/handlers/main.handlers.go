package routes

import (
	"net/http"

	redis_client "noisemap/internal/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupMainHandlers registers the status and metrics endpoints
func SetupMainHandlers(router *gin.RouterGroup, config map[string]string, gatherer prometheus.Gatherer) {
	router.GET("/", func(c *gin.Context) {
		status := gin.H{
			"port":      config["port"],
			"database":  config["dbUrl"] != "",
			"redis":     config["redisUrl"] != "",
			"sceneFile": config["sceneFile"],
		}
		if err := redis_client.Ping(c.Request.Context()); err != nil {
			status["redisError"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
