package noisemap

import (
	"context"
	"errors"
	"testing"

	"noisemap/internal/config"
	"noisemap/internal/metrics"
	"noisemap/internal/model"
	"noisemap/internal/propagation"
	"noisemap/internal/spectrum"
	"noisemap/internal/terrain"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// memorySource serves fixed slices filtered by region
type memorySource struct {
	extent       orb.Bound
	extentErr    error
	validateErr  error
	sources      []*model.Source
	receivers    []*model.Receiver
	buildings    []*model.Building
	terrain      []model.Point3D
	receiverHits atomic.Int64
}

func (m *memorySource) Extent(ctx context.Context) (orb.Bound, error) {
	return m.extent, m.extentErr
}

func (m *memorySource) Sources(ctx context.Context, region orb.Bound) ([]*model.Source, error) {
	var out []*model.Source
	for _, s := range m.sources {
		if region.Intersects(s.Bound()) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySource) Receivers(ctx context.Context, region orb.Bound) ([]*model.Receiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.receiverHits.Inc()
	var out []*model.Receiver
	for _, r := range m.receivers {
		if region.Contains(r.Position.XY()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memorySource) Buildings(ctx context.Context, region orb.Bound) ([]*model.Building, error) {
	var out []*model.Building
	for _, b := range m.buildings {
		if region.Intersects(b.Outline.Bound()) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memorySource) Terrain(ctx context.Context, region orb.Bound) ([]model.Point3D, error) {
	var out []model.Point3D
	for _, p := range m.terrain {
		if region.Contains(p.XY()) {
			out = append(out, p)
		}
	}
	return out, nil
}

type validatingSource struct {
	*memorySource
}

func (v validatingSource) Validate(ctx context.Context, cfg config.Propagation) error {
	return v.validateErr
}

// cancelAfter asks for cancellation once n cells are reported
type cancelAfter struct {
	n    int64
	done atomic.Int64
}

func (c *cancelAfter) Progress(done, total int64) { c.done.Store(done) }

func (c *cancelAfter) IsCancelled() bool { return c.done.Load() >= c.n }

func flatPower(db float64) []float64 {
	out := make([]float64, spectrum.BandCount)
	for i := range out {
		out[i] = spectrum.ToLinear(db)
	}
	return out
}

func testConfig() config.Propagation {
	cfg := config.DefaultPropagation()
	cfg.CellSize = 100
	cfg.MaxSourceDistance = 500
	cfg.WallAbsorption = 0
	cfg.Workers = 2
	return cfg
}

// fourCells is a 200x200 area with one source and receivers spread over four cells
func fourCells() *memorySource {
	src := &memorySource{
		extent: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{200, 200}},
		sources: []*model.Source{
			{ID: 1, Geometry: orb.Point{20, 20}, Z: 1, Power: flatPower(100)},
		},
		buildings: []*model.Building{
			{ID: 1, Height: 10, Outline: orb.Polygon{{{60, 120}, {80, 120}, {80, 140}, {60, 140}, {60, 120}}}},
		},
	}
	id := int64(1)
	for _, x := range []float64{50, 100, 150, 200} {
		for _, y := range []float64{50, 100, 150, 200} {
			src.receivers = append(src.receivers, &model.Receiver{ID: id, Position: model.Point3D{X: x, Y: y, Z: 4}})
			id++
		}
	}
	return src
}

func initialized(t *testing.T, src DataSource, cfg config.Propagation) *PointNoiseMap {
	t.Helper()
	m := New(src, cfg, nil)
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestInitialize_Grid(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	grid, err := m.Grid()
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Rows)
	assert.Equal(t, 2, grid.Cols)
}

func TestInitialize_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.HeightField = ""
	assert.ErrorIs(t, New(fourCells(), cfg, nil).Initialize(ctx), ErrConfiguration)

	cfg = testConfig()
	cfg.DiffractionOrder = -1
	err := New(fourCells(), cfg, nil).Initialize(ctx)
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg = testConfig()
	cfg.CellSize = 0
	assert.ErrorIs(t, New(fourCells(), cfg, nil).Initialize(ctx), ErrConfiguration)

	bad := map[string][]float64{"brick": {0.1}}
	assert.ErrorIs(t, New(fourCells(), testConfig(), bad).Initialize(ctx), ErrConfiguration)

	src := fourCells()
	src.validateErr = errors.New("column height missing")
	assert.ErrorIs(t, New(validatingSource{src}, testConfig(), nil).Initialize(ctx), ErrDataSource)

	src = fourCells()
	src.extentErr = errors.New("empty table")
	assert.ErrorIs(t, New(src, testConfig(), nil).Initialize(ctx), ErrDataSource)

	assert.ErrorIs(t, New(nil, testConfig(), nil).Initialize(ctx), ErrConfiguration)
}

func TestEvaluateCell_NotInitialized(t *testing.T) {
	m := New(fourCells(), testConfig(), nil)
	_, err := m.EvaluateCell(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.Evaluate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEvaluateCell_OutOfRange(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	for _, rc := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		_, err := m.EvaluateCell(context.Background(), rc[0], rc[1])
		assert.ErrorIs(t, err, ErrCellOutOfRange, "cell %v", rc)
	}
}

func TestEvaluateCell_Attribution(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	ctx := context.Background()

	owner := map[int64][2]int{}
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			levels, err := m.EvaluateCell(ctx, row, col)
			require.NoError(t, err)
			for i, l := range levels {
				if i > 0 {
					assert.Less(t, levels[i-1].ReceiverID, l.ReceiverID)
				}
				_, dup := owner[l.ReceiverID]
				assert.False(t, dup, "receiver %d evaluated twice", l.ReceiverID)
				owner[l.ReceiverID] = [2]int{row, col}
			}
		}
	}
	require.Len(t, owner, 16)
	// (50, 50) is cell (0, 0); (100, 100) starts cell (1, 1); (200, 200) closes the last cell
	assert.Equal(t, [2]int{0, 0}, owner[1])
	assert.Equal(t, [2]int{1, 1}, owner[6])
	assert.Equal(t, [2]int{1, 1}, owner[16])
	assert.Equal(t, [2]int{0, 1}, owner[13])
}

func TestEvaluateCell_Levels(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	levels, err := m.EvaluateCell(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Len(t, levels[0].Levels, spectrum.BandCount)
	assert.Greater(t, levels[0].Global, 0.0)
	assert.False(t, levels[0].Inside)
}

func TestEvaluateCell_SourceInNeighbourCell(t *testing.T) {
	ctx := context.Background()
	m := initialized(t, fourCells(), testConfig())

	levels, err := m.EvaluateCell(ctx, 1, 1)
	require.NoError(t, err)
	byID := map[int64]Level{}
	for _, l := range levels {
		byID[l.ReceiverID] = l
	}
	// the only source sits at (20, 20) in cell (0, 0)
	require.Contains(t, byID, int64(6))
	require.Contains(t, byID, int64(16))
	assert.Greater(t, byID[6].Global, 0.0)
	assert.Greater(t, byID[16].Global, 0.0)

	// a reach shorter than the gap between the cells leaves them silent
	cfg := testConfig()
	cfg.MaxSourceDistance = 70
	cfg.MaxReflectionDistance = 70
	short := initialized(t, fourCells(), cfg)
	levels, err = short.EvaluateCell(ctx, 1, 1)
	require.NoError(t, err)
	require.NotEmpty(t, levels)
	for _, l := range levels {
		assert.Equal(t, 0.0, l.Global, "receiver %d", l.ReceiverID)
	}

	near, err := short.EvaluateCell(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Greater(t, near[0].Global, 0.0)
}

func TestPrepareCell_TerrainTooFine(t *testing.T) {
	src := fourCells()
	src.terrain = []model.Point3D{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 0, Y: 200}, {X: 200, Y: 200}}
	cfg := testConfig()
	cfg.DEMResolution = 0.001
	m := initialized(t, src, cfg)

	_, err := m.PrepareCell(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, terrain.ErrGridTooLarge)
}

func TestEvaluate_MatchesCells(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	ctx := context.Background()

	run, err := m.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, run.Complete)
	assert.Equal(t, int64(4), run.CellsTotal)
	assert.Equal(t, int64(4), run.CellsDone)
	assert.NotEmpty(t, run.RunID)
	require.Len(t, run.Levels, 16)

	byID := map[int64]Level{}
	for _, l := range run.Levels {
		byID[l.ReceiverID] = l
	}
	cell, err := m.EvaluateCell(ctx, 1, 1)
	require.NoError(t, err)
	for _, l := range cell {
		assert.InDelta(t, l.Global, byID[l.ReceiverID].Global, 1e-9)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.CellWorkers = 1
	cfg.Workers = 1
	serial, err := initialized(t, fourCells(), cfg).Evaluate(ctx, nil)
	require.NoError(t, err)

	cfg.CellWorkers = 8
	cfg.Workers = 8
	parallel, err := initialized(t, fourCells(), cfg).Evaluate(ctx, nil)
	require.NoError(t, err)

	require.Len(t, parallel.Levels, len(serial.Levels))
	for i := range serial.Levels {
		assert.Equal(t, serial.Levels[i].ReceiverID, parallel.Levels[i].ReceiverID)
		assert.Equal(t, serial.Levels[i].Levels, parallel.Levels[i].Levels)
	}
}

func TestEvaluate_CancelledByVisitor(t *testing.T) {
	cfg := testConfig()
	cfg.CellWorkers = 1
	m := initialized(t, fourCells(), cfg)

	run, err := m.Evaluate(context.Background(), &cancelAfter{n: 1})
	require.NoError(t, err)
	assert.False(t, run.Complete)
	assert.Equal(t, int64(1), run.CellsDone)
	assert.Equal(t, int64(4), run.CellsTotal)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	src := fourCells()
	m := initialized(t, src, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := m.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.False(t, run.Complete)
	assert.Zero(t, run.CellsDone)
	assert.Empty(t, run.Levels)
	assert.Zero(t, src.receiverHits.Load())
}

func TestDebug(t *testing.T) {
	m := initialized(t, fourCells(), testConfig())
	ctx := context.Background()

	paths, err := m.DebugCell(ctx, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, propagation.KindDirect, paths[0].Kind)

	pair, err := m.DebugPair(ctx, 0, 0, 1, 1)
	require.NoError(t, err)
	require.Len(t, pair, 1)
	assert.Equal(t, int64(1), pair[0].SourceID)

	_, err = m.DebugPair(ctx, 0, 0, 1, 16)
	assert.ErrorIs(t, err, propagation.ErrNotFound)
}

func TestMetrics_CountWithoutDebugPaths(t *testing.T) {
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	m := initialized(t, fourCells(), testConfig())
	m.SetMetrics(collector)

	res, err := m.computeCell(context.Background(), 0, 0, false)
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
	require.Len(t, res.Receivers, 1)

	direct := res.Receivers[0].PathKinds[propagation.KindDirect]
	assert.Equal(t, 1, direct)
	assert.Equal(t, float64(direct), testutil.ToFloat64(collector.PathsFound.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CellsEvaluated))
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WallAbsorption = 0.3
	s := SettingsFromConfig(cfg, map[string][]float64{"glass": make([]float64, spectrum.BandCount)})
	require.Contains(t, s.Materials, propagation.DefaultMaterial)
	assert.InDelta(t, 0.3, s.Materials[propagation.DefaultMaterial][0], 1e-12)
	assert.Contains(t, s.Materials, "glass")
	assert.Equal(t, cfg.DiffractionOrder, s.DiffractionOrder)
	assert.NoError(t, s.Validate())
}
