package propagation

import (
	"errors"
	"fmt"

	"noisemap/internal/model"
	"noisemap/internal/spectrum"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrNotFound is returned when a source or receiver is not part of a scene
var ErrNotFound = errors.New("not found in scene")

// Engine searches propagation paths and sums their energy per band
type Engine struct {
	settings      Settings
	airAbsorption []float64 // dB/m per band
}

// Options selects what Compute returns besides the receiver energies
type Options struct {
	Debug bool // keep every accepted path in Result.Paths
}

// ReceiverResult is the energy received by one receiver from one scene
type ReceiverResult struct {
	ReceiverID int64
	Position   model.Point3D
	Energy     []float64 // linear, per band
	Inside     bool      // receiver is inside a building and gets nothing
	PathCount  int
	PathKinds  [KindCount]int // accepted paths by kind
}

// Levels returns the per-band levels in dB
func (r ReceiverResult) Levels() []float64 {
	return spectrum.ToDBBands(r.Energy)
}

// Global returns the overall level in dB(A)
func (r ReceiverResult) Global() float64 {
	return spectrum.Global(r.Energy)
}

// Result is the output of one scene evaluation
type Result struct {
	Receivers []ReceiverResult
	Paths     []Path // only filled in debug mode, grouped by receiver
}

// NewEngine validates the settings and prepares the band tables
func NewEngine(settings Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		settings:      settings,
		airAbsorption: settings.Atmosphere.Coefficients(),
	}, nil
}

// Settings returns the engine configuration
func (e *Engine) Settings() Settings {
	return e.settings
}

// Compute evaluates every receiver of the scene. Receivers run in parallel
// and results keep the scene order.
func (e *Engine) Compute(scene *Scene, opts Options) *Result {
	results := make([]ReceiverResult, len(scene.Receivers))
	var paths [][]Path
	if opts.Debug {
		paths = make([][]Path, len(scene.Receivers))
	}

	var g errgroup.Group
	g.SetLimit(max(1, e.settings.Workers))
	for i := range scene.Receivers {
		i := i
		g.Go(func() error {
			res, found := e.receive(scene, scene.Receivers[i], opts.Debug)
			results[i] = res
			if opts.Debug {
				paths[i] = found
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &Result{Receivers: results}
	for _, p := range paths {
		out.Paths = append(out.Paths, p...)
	}
	return out
}

// receive sums the contributions of every emitter in range of rcv
func (e *Engine) receive(scene *Scene, rcv model.Receiver, debug bool) (ReceiverResult, []Path) {
	res := ReceiverResult{
		ReceiverID: rcv.ID,
		Position:   rcv.Position,
		Energy:     make([]float64, spectrum.BandCount),
	}
	if scene.insideBuilding(rcv.Position) >= 0 {
		res.Inside = true
		return res, nil
	}

	var kept []Path
	for _, em := range scene.Emitters {
		if em.Position.Distance2D(rcv.Position) > e.settings.MaxSourceDistance {
			continue
		}
		for _, p := range e.pairPaths(scene, em, rcv) {
			floats.Add(res.Energy, p.Energy)
			res.PathCount++
			res.PathKinds[p.Kind]++
			if debug {
				kept = append(kept, p)
			}
		}
	}
	return res, kept
}

// PathsBetween returns every path from the emitters of one source to one receiver
func (e *Engine) PathsBetween(scene *Scene, sourceID, receiverID int64) ([]Path, error) {
	var rcv *model.Receiver
	for i := range scene.Receivers {
		if scene.Receivers[i].ID == receiverID {
			rcv = &scene.Receivers[i]
			break
		}
	}
	if rcv == nil {
		return nil, fmt.Errorf("receiver %d: %w", receiverID, ErrNotFound)
	}
	if scene.insideBuilding(rcv.Position) >= 0 {
		return nil, nil
	}

	var paths []Path
	seen := false
	for _, em := range scene.Emitters {
		if em.SourceID != sourceID {
			continue
		}
		seen = true
		paths = append(paths, e.pairPaths(scene, em, *rcv)...)
	}
	if !seen {
		return nil, fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return paths, nil
}
