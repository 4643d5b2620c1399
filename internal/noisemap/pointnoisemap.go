package noisemap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"noisemap/internal/config"
	"noisemap/internal/metrics"
	"noisemap/internal/model"
	"noisemap/internal/propagation"
	"noisemap/internal/service/storage"
	"noisemap/internal/spectrum"
	"noisemap/internal/terrain"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrConfiguration is returned for invalid or missing options
	ErrConfiguration = errors.New("configuration error")
	// ErrDataSource is returned when the data source cannot serve a query
	ErrDataSource = errors.New("data source error")
	// ErrCellOutOfRange is returned for cell indices outside the grid
	ErrCellOutOfRange = errors.New("cell out of range")
	// ErrNotInitialized is returned when a cell is requested before Initialize
	ErrNotInitialized = errors.New("noise map not initialized")
)

// Level is the finalized result of one receiver
type Level struct {
	ReceiverID int64         `json:"receiver_id"`
	Position   model.Point3D `json:"position"`
	Levels     []float64     `json:"levels"` // dB per band
	Global     float64       `json:"global"` // dB(A)
	Inside     bool          `json:"inside,omitempty"`
}

// RunResult is the outcome of a whole-grid evaluation
type RunResult struct {
	RunID      string        `json:"run_id"`
	Levels     []Level       `json:"levels"`
	CellsDone  int64         `json:"cells_done"`
	CellsTotal int64         `json:"cells_total"`
	Complete   bool          `json:"complete"`
	Duration   time.Duration `json:"duration"`
}

// receiverEnergy is the running sum of one receiver
type receiverEnergy struct {
	position model.Point3D
	energy   []float64
	inside   bool
}

// PointNoiseMap splits the study area into cells and evaluates the receivers
// of each cell against the sources within reach
type PointNoiseMap struct {
	cfg       config.Propagation
	materials map[string][]float64
	source    DataSource
	metrics   *metrics.Collector

	mu     sync.RWMutex
	engine *propagation.Engine
	grid   *CellGrid
}

// New creates an orchestrator. Initialize must be called before any cell is used.
func New(source DataSource, cfg config.Propagation, materials map[string][]float64) *PointNoiseMap {
	return &PointNoiseMap{
		cfg:       cfg,
		materials: materials,
		source:    source,
	}
}

// SetMetrics attaches a metrics collector
func (p *PointNoiseMap) SetMetrics(c *metrics.Collector) {
	p.metrics = c
}

// Initialize validates the configuration and the data source and builds the cell grid
func (p *PointNoiseMap) Initialize(ctx context.Context) error {
	if p.source == nil {
		return fmt.Errorf("%w: no data source", ErrConfiguration)
	}
	if err := validateConfig(p.cfg); err != nil {
		return err
	}
	engine, err := propagation.NewEngine(SettingsFromConfig(p.cfg, p.materials))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if v, ok := p.source.(Validator); ok {
		if err := v.Validate(ctx, p.cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrDataSource, err)
		}
	}

	extent, err := p.source.Extent(ctx)
	if err != nil {
		return fmt.Errorf("%w: extent: %v", ErrDataSource, err)
	}
	grid, err := NewCellGrid(extent, p.cfg.CellSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	p.mu.Lock()
	p.engine = engine
	p.grid = grid
	p.mu.Unlock()

	log.Printf("Noise map initialized: %dx%d cells of %.0f m, diffraction order %d, reflection order %d",
		grid.Rows, grid.Cols, grid.Size, p.cfg.DiffractionOrder, p.cfg.ReflectionOrder)
	return nil
}

// Grid returns the cell grid built by Initialize
func (p *PointNoiseMap) Grid() (*CellGrid, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.grid == nil {
		return nil, ErrNotInitialized
	}
	return p.grid, nil
}

func (p *PointNoiseMap) state() (*propagation.Engine, *CellGrid, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.engine == nil {
		return nil, nil, ErrNotInitialized
	}
	return p.engine, p.grid, nil
}

// PrepareCell gathers the receivers of the cell and every source, building
// and terrain sample within the maximum source distance of it
func (p *PointNoiseMap) PrepareCell(ctx context.Context, row, col int) (*propagation.Scene, error) {
	_, grid, err := p.state()
	if err != nil {
		return nil, err
	}
	cell, err := grid.Cell(row, col)
	if err != nil {
		return nil, err
	}
	region := cell.Bound.Pad(p.cfg.MaxSourceDistance)

	all, err := p.source.Receivers(ctx, cell.Bound)
	if err != nil {
		return nil, fmt.Errorf("%w: receivers of %s: %w", ErrDataSource, cell.ID, err)
	}
	receivers := make([]*model.Receiver, 0, len(all))
	for _, r := range all {
		if grid.Owns(cell, r.Position.XY()) {
			receivers = append(receivers, r)
		}
	}

	sources, err := p.source.Sources(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("%w: sources of %s: %w", ErrDataSource, cell.ID, err)
	}
	buildings, err := p.source.Buildings(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("%w: buildings of %s: %w", ErrDataSource, cell.ID, err)
	}
	samples, err := p.source.Terrain(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("%w: terrain of %s: %w", ErrDataSource, cell.ID, err)
	}

	var dem *terrain.Grid
	if len(samples) > 0 {
		dem, err = terrain.FromSamples(samples, p.cfg.DEMResolution)
		if errors.Is(err, terrain.ErrGridTooLarge) {
			return nil, fmt.Errorf("%w: terrain of %s: %w", ErrConfiguration, cell.ID, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: terrain of %s: %w", ErrDataSource, cell.ID, err)
		}
	}

	return propagation.NewScene(sources, receivers, buildings, dem, propagation.SceneOptions{
		LineSourceStep:          p.cfg.LineSourceStep,
		SourceHeightsRelative:   p.cfg.SourceHeightsRelative,
		ReceiverHeightsRelative: p.cfg.ReceiverHeightsRelative,
	}), nil
}

// computeCell prepares and evaluates one cell
func (p *PointNoiseMap) computeCell(ctx context.Context, row, col int, debug bool) (*propagation.Result, error) {
	engine, _, err := p.state()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	scene, err := p.PrepareCell(ctx, row, col)
	if err != nil {
		return nil, err
	}
	res := engine.Compute(scene, propagation.Options{Debug: debug})
	p.observe(res, time.Since(start))
	return res, nil
}

func (p *PointNoiseMap) observe(res *propagation.Result, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveCell(d, len(res.Receivers))
	var counts [propagation.KindCount]int
	for _, r := range res.Receivers {
		for kind, n := range r.PathKinds {
			counts[kind] += n
		}
	}
	for kind, n := range counts {
		p.metrics.AddPaths(propagation.PathKind(kind).String(), n)
	}
}

// EvaluateCell returns one level per receiver located in the cell, by receiver ID
func (p *PointNoiseMap) EvaluateCell(ctx context.Context, row, col int) ([]Level, error) {
	res, err := p.computeCell(ctx, row, col, false)
	if err != nil {
		return nil, err
	}
	levels := make([]Level, len(res.Receivers))
	for i, r := range res.Receivers {
		levels[i] = Level{
			ReceiverID: r.ReceiverID,
			Position:   r.Position,
			Levels:     r.Levels(),
			Global:     r.Global(),
			Inside:     r.Inside,
		}
	}
	return levels, nil
}

// DebugCell returns every path found in the cell
func (p *PointNoiseMap) DebugCell(ctx context.Context, row, col int) ([]propagation.Path, error) {
	res, err := p.computeCell(ctx, row, col, true)
	if err != nil {
		return nil, err
	}
	return res.Paths, nil
}

// DebugPair returns every path between one source and one receiver of the cell
func (p *PointNoiseMap) DebugPair(ctx context.Context, row, col int, sourceID, receiverID int64) ([]propagation.Path, error) {
	engine, _, err := p.state()
	if err != nil {
		return nil, err
	}
	scene, err := p.PrepareCell(ctx, row, col)
	if err != nil {
		return nil, err
	}
	return engine.PathsBetween(scene, sourceID, receiverID)
}

// Evaluate runs every cell under a new run ID
func (p *PointNoiseMap) Evaluate(ctx context.Context, progress ProgressVisitor) (*RunResult, error) {
	return p.EvaluateRun(ctx, uuid.NewString(), progress)
}

// EvaluateRun runs every cell on a bounded pool of workers and accumulates the
// receiver energies. Cancellation through ctx or progress is checked before
// each cell; a cancelled run is returned with Complete unset and no error.
func (p *PointNoiseMap) EvaluateRun(ctx context.Context, runID string, progress ProgressVisitor) (*RunResult, error) {
	_, grid, err := p.state()
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NoProgress{}
	}

	run := &RunResult{
		RunID:      runID,
		CellsTotal: int64(grid.Count()),
	}
	start := time.Now()
	log.Printf("Starting run %s over %d cells", run.RunID, run.CellsTotal)

	acc := storage.NewShardedMemoryStorage[int64, *receiverEnergy](32, nil)
	done := atomic.NewInt64(0)
	cancelled := atomic.NewBool(false)
	stop := func() bool {
		if ctx.Err() != nil || progress.IsCancelled() {
			cancelled.Store(true)
			return true
		}
		return false
	}

	workers := max(1, p.cfg.CellWorkers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, cell := range grid.Cells() {
		cell := cell
		if stop() {
			break
		}
		g.Go(func() error {
			if stop() {
				return nil
			}
			res, err := p.computeCell(gctx, cell.Row, cell.Col, false)
			if err != nil {
				if ctx.Err() != nil {
					cancelled.Store(true)
					return nil
				}
				return fmt.Errorf("cell %s: %w", cell.ID, err)
			}
			for _, r := range res.Receivers {
				acc.Update(r.ReceiverID, func(cur *receiverEnergy, exists bool) *receiverEnergy {
					if !exists {
						cur = &receiverEnergy{position: r.Position, energy: make([]float64, spectrum.BandCount)}
					}
					floats.Add(cur.energy, r.Energy)
					cur.inside = cur.inside || r.Inside
					return cur
				})
			}
			progress.Progress(done.Inc(), run.CellsTotal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.CellsDone = done.Load()
	run.Complete = !cancelled.Load() && run.CellsDone == run.CellsTotal
	run.Levels = finalize(acc.GetAll())
	run.Duration = time.Since(start)

	if run.Complete {
		log.Printf("Run %s complete: %d receivers in %v", run.RunID, len(run.Levels), run.Duration)
	} else {
		p.metrics.IncCancelled()
		log.Printf("Run %s cancelled after %d/%d cells", run.RunID, run.CellsDone, run.CellsTotal)
	}
	return run, nil
}

// finalize converts accumulated energies to levels ordered by receiver ID
func finalize(energies map[int64]*receiverEnergy) []Level {
	levels := make([]Level, 0, len(energies))
	for id, e := range energies {
		levels = append(levels, Level{
			ReceiverID: id,
			Position:   e.position,
			Levels:     spectrum.ToDBBands(e.energy),
			Global:     spectrum.Global(e.energy),
			Inside:     e.inside,
		})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ReceiverID < levels[j].ReceiverID })
	return levels
}
