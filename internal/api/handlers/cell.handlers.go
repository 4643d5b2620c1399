package routes

import (
	"errors"
	"net/http"
	"strconv"

	"noisemap/internal/export"
	"noisemap/internal/noisemap"
	"noisemap/internal/propagation"

	"github.com/gin-gonic/gin"
)

// CellHandlers serves the cell grid and per-cell debugging
type CellHandlers struct {
	noise *noisemap.PointNoiseMap
}

// SetupCellHandlers registers the cell endpoints
func SetupCellHandlers(router *gin.RouterGroup, noise *noisemap.PointNoiseMap) {
	h := &CellHandlers{noise: noise}
	cellGroup := router.Group("/cells")

	cellGroup.GET("", h.GetCells)
	cellGroup.GET("/:row/:col/levels", h.GetCellLevels)
	cellGroup.GET("/:row/:col/paths", h.GetCellPaths)
}

// cellIndex parses the row and col parameters
func cellIndex(c *gin.Context) (int, int, bool) {
	row, err := strconv.Atoi(c.Param("row"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row"})
		return 0, 0, false
	}
	col, err := strconv.Atoi(c.Param("col"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid col"})
		return 0, 0, false
	}
	return row, col, true
}

// cellError maps orchestrator errors to status codes
func cellError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, noisemap.ErrCellOutOfRange), errors.Is(err, propagation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, noisemap.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetCells returns the cell grid as a GeoJSON FeatureCollection
func (h *CellHandlers) GetCells(c *gin.Context) {
	grid, err := h.noise.Grid()
	if err != nil {
		cellError(c, err)
		return
	}
	c.JSON(http.StatusOK, export.Cells(grid))
}

// GetCellLevels evaluates one cell
func (h *CellHandlers) GetCellLevels(c *gin.Context) {
	row, col, ok := cellIndex(c)
	if !ok {
		return
	}
	levels, err := h.noise.EvaluateCell(c.Request.Context(), row, col)
	if err != nil {
		cellError(c, err)
		return
	}
	c.JSON(http.StatusOK, levels)
}

// GetCellPaths returns the paths of one cell, or of one source and receiver
// pair when both query parameters are given. ?format=geojson returns lines.
func (h *CellHandlers) GetCellPaths(c *gin.Context) {
	row, col, ok := cellIndex(c)
	if !ok {
		return
	}

	var (
		paths []propagation.Path
		err   error
	)
	source, receiver := c.Query("source"), c.Query("receiver")
	if source != "" && receiver != "" {
		sourceID, errS := strconv.ParseInt(source, 10, 64)
		receiverID, errR := strconv.ParseInt(receiver, 10, 64)
		if errS != nil || errR != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source or receiver id"})
			return
		}
		paths, err = h.noise.DebugPair(c.Request.Context(), row, col, sourceID, receiverID)
	} else {
		paths, err = h.noise.DebugCell(c.Request.Context(), row, col)
	}
	if err != nil {
		cellError(c, err)
		return
	}

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, export.Paths(paths))
		return
	}
	c.JSON(http.StatusOK, paths)
}
