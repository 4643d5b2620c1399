package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"noisemap/internal/config"
	"noisemap/internal/metrics"
	"noisemap/internal/model"
	"noisemap/internal/noisemap"
	"noisemap/internal/service/result"
	"noisemap/internal/service/scene"
	"noisemap/internal/spectrum"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *result.ResultService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	src := scene.NewSceneService("height")
	src.AddSource(&model.Source{ID: 1, Geometry: orb.Point{0, 0}, Z: 1, Power: spectrum.PowerFromLevel(100, spectrum.RoadTraffic)})
	src.AddReceiver(&model.Receiver{ID: 1, Position: model.Point3D{X: 50, Y: 0, Z: 4}})
	src.AddReceiver(&model.Receiver{ID: 2, Position: model.Point3D{X: 250, Y: 80, Z: 4}})
	src.RebuildIndex()

	cfg := config.DefaultPropagation()
	cfg.CellSize = 100
	noise := noisemap.New(src, cfg, nil)
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	noise.SetMetrics(collector)
	require.NoError(t, noise.Initialize(context.Background()))

	results := result.NewResultService(nil, nil)
	r := gin.New()
	SetupRouter(context.Background(), r, map[string]string{"port": ":8080"}, noise, results, collector.Gatherer())
	return r, results
}

func get(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestStatusAndMetrics(t *testing.T) {
	r, _ := setup(t)
	w := get(r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"port":":8080"`)

	get(r, http.MethodGet, "/api/cells/0/0/levels")
	w = get(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "noisemap_cells_evaluated_total")
}

func TestCells(t *testing.T) {
	r, _ := setup(t)

	w := get(r, http.MethodGet, "/api/cells")
	require.Equal(t, http.StatusOK, w.Code)
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Len(t, fc.Features, 2)

	w = get(r, http.MethodGet, "/api/cells/0/0/levels")
	require.Equal(t, http.StatusOK, w.Code)
	var levels []noisemap.Level
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &levels))
	require.Len(t, levels, 1)
	assert.Equal(t, int64(1), levels[0].ReceiverID)
	assert.Greater(t, levels[0].Global, 0.0)

	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/cells/4/0/levels").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/cells/a/0/levels").Code)
}

func TestCellPaths(t *testing.T) {
	r, _ := setup(t)

	w := get(r, http.MethodGet, "/api/cells/0/0/paths")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"direct"`)

	w = get(r, http.MethodGet, "/api/cells/0/0/paths?source=1&receiver=1&format=geojson")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"LineString"`)

	w = get(r, http.MethodGet, "/api/cells/0/0/paths?source=1&receiver=2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuns(t *testing.T) {
	r, results := setup(t)

	w := get(r, http.MethodPost, "/api/runs")
	require.Equal(t, http.StatusAccepted, w.Code)
	var status result.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotEmpty(t, status.ID)

	require.Eventually(t, func() bool {
		run, ok := results.GetRun(status.ID)
		return ok && run.Status().Finished
	}, 5*time.Second, 10*time.Millisecond)

	w = get(r, http.MethodGet, "/api/runs/"+status.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"complete":true`)

	w = get(r, http.MethodGet, "/api/runs/"+status.ID+"/levels/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"receiver_id":1`)

	w = get(r, http.MethodGet, "/api/runs/"+status.ID+"/levels")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)

	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/runs/"+status.ID+"/levels/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/runs/"+status.ID+"/levels/x").Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/runs/unknown").Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodDelete, "/api/runs/unknown").Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodPost, "/api/runs/unknown/cancel").Code)

	w = get(r, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), status.ID)

	assert.Equal(t, http.StatusOK, get(r, http.MethodDelete, "/api/runs/"+status.ID).Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/runs/"+status.ID).Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/runs/"+status.ID+"/levels/1").Code)
}

func TestRuns_DeleteActive(t *testing.T) {
	r, results := setup(t)
	run := results.StartRun()

	assert.Equal(t, http.StatusConflict, get(r, http.MethodDelete, "/api/runs/"+run.ID).Code)
	assert.Equal(t, http.StatusOK, get(r, http.MethodPost, "/api/runs/"+run.ID+"/cancel").Code)
	assert.True(t, run.IsCancelled())
	assert.Equal(t, http.StatusConflict, get(r, http.MethodDelete, "/api/runs/"+run.ID).Code)
}
