package terrain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"noisemap/internal/model"
	"noisemap/internal/rows"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// ErrNoSamples is returned when a grid is built from an empty sample set
var ErrNoSamples = errors.New("no elevation samples")

// Grid is a regular DEM raster. Nodes sit at Origin + (col, row) * Resolution.
// A nil *Grid is a flat terrain at altitude 0.
type Grid struct {
	Origin     orb.Point
	Resolution float64
	Cols       int
	Rows       int

	z        []float64 // row-major, NaN for missing nodes
	stripMax []float64 // highest node of rows r and r+1
}

// Sample is one point of a vertical profile
type Sample struct {
	Dist float64 // planar distance from the start of the profile
	Z    float64 // ground altitude
}

// NewGrid builds a grid from row-major node altitudes
func NewGrid(origin orb.Point, resolution float64, cols, rowCount int, z []float64) (*Grid, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %f", resolution)
	}
	if cols < 1 || rowCount < 1 || len(z) != cols*rowCount {
		return nil, fmt.Errorf("grid %dx%d does not match %d altitudes", cols, rowCount, len(z))
	}
	g := &Grid{
		Origin:     origin,
		Resolution: resolution,
		Cols:       cols,
		Rows:       rowCount,
		z:          z,
	}
	g.computeStripMax()
	return g, nil
}

const (
	// MinResolution is the finest spacing inferred from scattered samples
	MinResolution = 1.0
	// MaxNodes bounds the size of a grid built from samples
	MaxNodes = 1 << 20
	// idwNeighbours is the number of samples weighted into one node
	idwNeighbours = 6
)

// ErrGridTooLarge is returned when the requested resolution over the sample
// extent would exceed MaxNodes
var ErrGridTooLarge = errors.New("elevation grid too large")

// sampleItem indexes one sample in the rtree
type sampleItem struct {
	p model.Point3D
}

func (s *sampleItem) Bounds() rtreego.Rect {
	return model.RectFromBound(orb.Bound{Min: s.p.XY(), Max: s.p.XY()})
}

// FromSamples rasterises scattered samples. Every node is interpolated by
// inverse distance weighting over its nearest samples, so the surface is
// continuous between samples. When resolution is not positive it is inferred
// from the median spacing between neighbouring samples, at least MinResolution,
// and coarsened to stay within MaxNodes.
func FromSamples(samples []model.Point3D, resolution float64) (*Grid, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	items := make([]rtreego.Spatial, len(samples))
	bound := orb.Bound{Min: samples[0].XY(), Max: samples[0].XY()}
	for i, s := range samples {
		items[i] = &sampleItem{p: s}
		bound = bound.Extend(s.XY())
	}
	index := rtreego.NewTree(2, 25, 50, items...)

	inferred := resolution <= 0
	if inferred {
		resolution = math.Max(MinResolution, medianSpacing(index, samples))
	}
	cols, rowCount := gridSize(bound, resolution)
	if nodes := float64(cols) * float64(rowCount); nodes > MaxNodes {
		if !inferred {
			return nil, fmt.Errorf("%w: %.0f nodes at %g m resolution", ErrGridTooLarge, nodes, resolution)
		}
		for float64(cols)*float64(rowCount) > MaxNodes {
			resolution *= 1.25
			cols, rowCount = gridSize(bound, resolution)
		}
	}

	z := make([]float64, cols*rowCount)
	for r := 0; r < rowCount; r++ {
		for c := 0; c < cols; c++ {
			p := orb.Point{bound.Min[0] + float64(c)*resolution, bound.Min[1] + float64(r)*resolution}
			z[r*cols+c] = interpolate(index, p, resolution*1e-6)
		}
	}
	return NewGrid(bound.Min, resolution, cols, rowCount, z)
}

// gridSize returns the node counts covering bound at the given resolution
func gridSize(bound orb.Bound, resolution float64) (int, int) {
	cols := int(math.Ceil((bound.Max[0]-bound.Min[0])/resolution-1e-9)) + 1
	rowCount := int(math.Ceil((bound.Max[1]-bound.Min[1])/resolution-1e-9)) + 1
	return cols, rowCount
}

// interpolate weights the nearest samples by the inverse squared distance.
// Samples within tol of p are averaged and returned as is.
func interpolate(index *rtreego.Rtree, p orb.Point, tol float64) float64 {
	var sum, weight, exactSum float64
	exact := 0
	for _, item := range index.NearestNeighbors(idwNeighbours, rtreego.Point{p[0], p[1]}) {
		if item == nil {
			continue
		}
		s := item.(*sampleItem).p
		d := math.Hypot(s.X-p[0], s.Y-p[1])
		if d <= tol {
			exactSum += s.Z
			exact++
			continue
		}
		w := 1 / (d * d)
		sum += s.Z * w
		weight += w
	}
	if exact > 0 {
		return exactSum / float64(exact)
	}
	if weight == 0 {
		return math.NaN()
	}
	return sum / weight
}

// medianSpacing returns the median distance from each sample to its nearest
// distinct neighbour, 0 when all samples coincide
func medianSpacing(index *rtreego.Rtree, samples []model.Point3D) float64 {
	var spacing []float64
	for _, s := range samples {
		best := math.Inf(1)
		for _, item := range index.NearestNeighbors(idwNeighbours, rtreego.Point{s.X, s.Y}) {
			if item == nil {
				continue
			}
			if d := s.Distance2D(item.(*sampleItem).p); d > 1e-9 && d < best {
				best = d
			}
		}
		if !math.IsInf(best, 1) {
			spacing = append(spacing, best)
		}
	}
	if len(spacing) == 0 {
		return 0
	}
	sort.Float64s(spacing)
	return spacing[len(spacing)/2]
}

func (g *Grid) computeStripMax() {
	rowMax := make([]float64, g.Rows)
	for r := 0; r < g.Rows; r++ {
		rowMax[r] = math.Inf(-1)
		for c := 0; c < g.Cols; c++ {
			if z := g.z[r*g.Cols+c]; !math.IsNaN(z) && z > rowMax[r] {
				rowMax[r] = z
			}
		}
	}
	g.stripMax = make([]float64, g.Rows)
	for r := 0; r < g.Rows; r++ {
		g.stripMax[r] = rowMax[r]
		if r+1 < g.Rows && rowMax[r+1] > g.stripMax[r] {
			g.stripMax[r] = rowMax[r+1]
		}
	}
}

// Bound returns the extent covered by the nodes
func (g *Grid) Bound() orb.Bound {
	if g == nil {
		return orb.Bound{}
	}
	return orb.Bound{
		Min: g.Origin,
		Max: orb.Point{
			g.Origin[0] + float64(g.Cols-1)*g.Resolution,
			g.Origin[1] + float64(g.Rows-1)*g.Resolution,
		},
	}
}

func (g *Grid) node(c, r int) (float64, bool) {
	if c < 0 || r < 0 || c >= g.Cols || r >= g.Rows {
		return 0, false
	}
	z := g.z[r*g.Cols+c]
	return z, !math.IsNaN(z)
}

// Elevation returns the ground altitude at (x, y) by bilinear interpolation.
// Missing nodes are left out of the weighting; the second value is false when
// no node around the point has data.
func (g *Grid) Elevation(x, y float64) (float64, bool) {
	if g == nil {
		return 0, false
	}
	fx := (x - g.Origin[0]) / g.Resolution
	fy := (y - g.Origin[1]) / g.Resolution
	fx = math.Max(0, math.Min(fx, float64(g.Cols-1)))
	fy = math.Max(0, math.Min(fy, float64(g.Rows-1)))

	c0, r0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(c0), fy-float64(r0)

	var sum, weight float64
	corners := [4]struct {
		c, r int
		w    float64
	}{
		{c0, r0, (1 - tx) * (1 - ty)},
		{c0 + 1, r0, tx * (1 - ty)},
		{c0, r0 + 1, (1 - tx) * ty},
		{c0 + 1, r0 + 1, tx * ty},
	}
	for _, k := range corners {
		if k.w == 0 {
			continue
		}
		if z, ok := g.node(k.c, k.r); ok {
			sum += z * k.w
			weight += k.w
		}
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// Ground returns the ground altitude at p, 0 outside the data
func (g *Grid) Ground(p orb.Point) float64 {
	z, _ := g.Elevation(p[0], p[1])
	return z
}

// stripOf returns the row strip containing y
func (g *Grid) stripOf(y float64) int {
	s := int(math.Floor((y - g.Origin[1]) / g.Resolution))
	if s < 0 {
		return 0
	}
	if s > g.Rows-1 {
		return g.Rows - 1
	}
	return s
}

// crossedStrips collects the row strips spanned by the leg a-b that rise at
// least to floor. Lower strips cannot reach the leg.
func (g *Grid) crossedStrips(a, b orb.Point, floor float64) *rows.Merger {
	m := rows.NewMerger()
	s0, s1 := g.stripOf(a[1]), g.stripOf(b[1])
	if s0 > s1 {
		s0, s1 = s1, s0
	}
	for s := s0; s <= s1; s++ {
		if g.stripMax[s] >= floor {
			m.Add(s)
		}
	}
	return m
}

// Profile returns ground samples along the planar leg a-b, ordered by
// distance from a. Only strips that can rise above the lower endpoint are
// sampled, so the result may be empty for flat terrain under the leg.
func (g *Grid) Profile(a, b model.Point3D) []Sample {
	if g == nil {
		return nil
	}
	length := a.Distance2D(b)
	if length == 0 {
		return nil
	}
	floor := math.Min(a.Z, b.Z)
	strips := g.crossedStrips(a.XY(), b.XY(), floor)
	if strips.Len() == 0 {
		return nil
	}

	step := g.Resolution / 2
	dy := b.Y - a.Y
	var out []Sample
	for _, span := range strips.Ranges() {
		t0, t1 := 0.0, 1.0
		if dy != 0 {
			y0 := g.Origin[1] + float64(span.Begin)*g.Resolution
			y1 := g.Origin[1] + float64(span.End+1)*g.Resolution
			ta, tb := (y0-a.Y)/dy, (y1-a.Y)/dy
			if ta > tb {
				ta, tb = tb, ta
			}
			t0, t1 = math.Max(0, ta), math.Min(1, tb)
			if span.Begin == 0 {
				if dy > 0 {
					t0 = 0
				} else {
					t1 = 1
				}
			}
			if span.End == g.Rows-1 {
				if dy > 0 {
					t1 = 1
				} else {
					t0 = 0
				}
			}
		}
		if t1 <= t0 {
			continue
		}
		n := int(math.Ceil((t1 - t0) * length / step))
		for k := 0; k <= n; k++ {
			t := t0 + (t1-t0)*float64(k)/float64(max(n, 1))
			x := a.X + (b.X-a.X)*t
			y := a.Y + dy*t
			z, ok := g.Elevation(x, y)
			if !ok {
				continue
			}
			out = append(out, Sample{Dist: t * length, Z: z})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}

// Blocks reports whether the ground rises above the 3-D segment a-b.
// Endpoints within tolerance of the ground are not considered blocked.
func (g *Grid) Blocks(a, b model.Point3D) bool {
	length := a.Distance2D(b)
	for _, s := range g.Profile(a, b) {
		lineZ := a.Z + (b.Z-a.Z)*s.Dist/length
		if s.Z > lineZ+1e-6 {
			return true
		}
	}
	return false
}
