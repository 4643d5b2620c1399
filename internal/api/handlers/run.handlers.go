package routes

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"noisemap/internal/export"
	"noisemap/internal/noisemap"
	"noisemap/internal/service/result"

	"github.com/gin-gonic/gin"
)

// RunHandlers serves evaluation runs and their levels
type RunHandlers struct {
	ctx     context.Context
	noise   *noisemap.PointNoiseMap
	results *result.ResultService
}

// SetupRunHandlers registers the run endpoints. Runs started over HTTP stop when ctx is done.
func SetupRunHandlers(ctx context.Context, router *gin.RouterGroup, noise *noisemap.PointNoiseMap, results *result.ResultService) {
	h := &RunHandlers{ctx: ctx, noise: noise, results: results}
	runGroup := router.Group("/runs")

	runGroup.POST("", h.StartRun)
	runGroup.GET("", h.ListRuns)
	runGroup.GET("/:id", h.GetRun)
	runGroup.POST("/:id/cancel", h.CancelRun)
	runGroup.DELETE("/:id", h.DeleteRun)
	runGroup.GET("/:id/levels", h.GetLevels)
	runGroup.GET("/:id/levels/:receiver", h.GetLevel)
}

// StartRun starts an evaluation of the whole grid in the background
func (h *RunHandlers) StartRun(c *gin.Context) {
	run := h.results.StartRun()
	log.Printf("Run %s requested", run.ID)

	go func() {
		res, err := h.noise.EvaluateRun(h.ctx, run.ID, run)
		if err != nil {
			log.Printf("ERROR: run %s failed: %v", run.ID, err)
			run.Fail(err)
			return
		}
		h.results.Finish(res)
	}()

	c.JSON(http.StatusAccepted, run.Status())
}

// ListRuns returns the status of every run
func (h *RunHandlers) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, h.results.Runs())
}

// GetRun returns the status of one run
func (h *RunHandlers) GetRun(c *gin.Context) {
	run, ok := h.results.GetRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run.Status())
}

// CancelRun asks a run to stop before its next cell
func (h *RunHandlers) CancelRun(c *gin.Context) {
	if err := h.results.CancelRun(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// DeleteRun drops a finished run and its levels
func (h *RunHandlers) DeleteRun(c *gin.Context) {
	err := h.results.DeleteRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, result.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, result.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// GetLevels returns the levels of a run as a GeoJSON FeatureCollection
func (h *RunHandlers) GetLevels(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.results.GetRun(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, export.Levels(h.results.Levels(id)))
}

// GetLevel returns the level of one receiver
func (h *RunHandlers) GetLevel(c *gin.Context) {
	receiverID, err := strconv.ParseInt(c.Param("receiver"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receiver id"})
		return
	}

	level, err := h.results.GetLevel(c.Request.Context(), c.Param("id"), receiverID)
	if errors.Is(err, result.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, level)
}
