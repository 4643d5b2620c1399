package propagation

import (
	"log"
	"math"
	"sort"

	"noisemap/internal/model"
	"noisemap/internal/spectrum"
	"noisemap/internal/terrain"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// cornerOffset moves diffraction corners off the facade
const cornerOffset = 0.01

// SceneOptions controls how raw inputs are turned into a scene
type SceneOptions struct {
	LineSourceStep          float64 // discretization step of line sources
	SourceHeightsRelative   bool    // source Z is a height above ground
	ReceiverHeightsRelative bool    // receiver Z is a height above ground
}

// Scene is the read-only input of one cell evaluation
type Scene struct {
	Emitters  []model.Emitter
	Receivers []model.Receiver
	Buildings []*model.Building
	Terrain   *terrain.Grid

	index *rtreego.Rtree
	walls [][]wall // per building, one wall per ring edge
}

// wall is one facade segment with its outward normal
type wall struct {
	building int
	edge     int
	p0, p1   orb.Point
	normal   orb.Point
}

// sceneBuilding indexes a building by its position in the scene
type sceneBuilding struct {
	idx int
	b   *model.Building
}

// Bounds implements the rtreego.Spatial interface
func (s *sceneBuilding) Bounds() rtreego.Rect {
	return model.RectFromBound(s.b.BoundingBox)
}

// NewScene discretizes sources, places every object on the terrain and
// indexes the buildings. Degenerate buildings and sources are skipped with a
// warning.
func NewScene(sources []*model.Source, receivers []*model.Receiver, buildings []*model.Building, dem *terrain.Grid, opts SceneOptions) *Scene {
	s := &Scene{
		Terrain: dem,
		index:   rtreego.NewTree(2, 25, 50),
	}

	for _, src := range buildings {
		b := *src
		b.Outline = src.Outline.Clone()
		b.Normalize()
		if err := b.Validate(); err != nil {
			log.Printf("WARN: skipping building: %v", err)
			continue
		}
		b.Base = baseAltitude(dem, b.Ring())
		idx := len(s.Buildings)
		s.Buildings = append(s.Buildings, &b)
		s.walls = append(s.walls, buildWalls(idx, b.Ring()))
		s.index.Insert(&sceneBuilding{idx: idx, b: &b})
	}

	for _, src := range sources {
		if len(src.Power) != spectrum.BandCount {
			log.Printf("WARN: skipping source %d: %d bands, expected %d", src.ID, len(src.Power), spectrum.BandCount)
			continue
		}
		emitters, err := src.Discretize(opts.LineSourceStep)
		if err != nil {
			log.Printf("WARN: skipping source: %v", err)
			continue
		}
		for _, e := range emitters {
			if opts.SourceHeightsRelative {
				e.Position.Z += dem.Ground(e.Position.XY())
			}
			if idx := s.insideBuilding(e.Position); idx >= 0 {
				log.Printf("WARN: source %d emitter inside building %d, skipped", e.SourceID, s.Buildings[idx].ID)
				continue
			}
			s.Emitters = append(s.Emitters, e)
		}
	}

	for _, r := range receivers {
		rec := *r
		if opts.ReceiverHeightsRelative {
			rec.Position.Z += dem.Ground(rec.Position.XY())
		}
		s.Receivers = append(s.Receivers, rec)
	}
	sort.SliceStable(s.Receivers, func(i, j int) bool { return s.Receivers[i].ID < s.Receivers[j].ID })

	return s
}

// baseAltitude is the lowest ground altitude under the footprint vertices
func baseAltitude(dem *terrain.Grid, ring orb.Ring) float64 {
	if dem == nil {
		return 0
	}
	base := math.Inf(1)
	for _, p := range ring {
		base = math.Min(base, dem.Ground(p))
	}
	return base
}

func buildWalls(building int, ring orb.Ring) []wall {
	var walls []wall
	for i := 0; i+1 < len(ring); i++ {
		p0, p1 := ring[i], ring[i+1]
		dx, dy := p1[0]-p0[0], p1[1]-p0[1]
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		walls = append(walls, wall{
			building: building,
			edge:     i,
			p0:       p0,
			p1:       p1,
			// ring is counter-clockwise, the outside is on the right
			normal: orb.Point{dy / l, -dx / l},
		})
	}
	return walls
}

// buildingsNear returns the buildings intersecting bound, in scene order
func (s *Scene) buildingsNear(bound orb.Bound) []int {
	if len(s.Buildings) == 0 {
		return nil
	}
	hits := s.index.SearchIntersect(model.RectFromBound(bound))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*sceneBuilding).idx)
	}
	sort.Ints(out)
	return out
}

// wallsNear returns the facades of buildings within dist of the planar segment a-b
func (s *Scene) wallsNear(a, b orb.Point, dist float64) []wall {
	bound := orb.Bound{Min: a, Max: a}.Extend(b).Pad(dist)
	var out []wall
	for _, idx := range s.buildingsNear(bound) {
		for _, w := range s.walls[idx] {
			if segmentDistance(w.p0, w.p1, a, b) <= dist {
				out = append(out, w)
			}
		}
	}
	return out
}

// insideBuilding returns the index of the building containing p below its roof, or -1
func (s *Scene) insideBuilding(p model.Point3D) int {
	pt := p.XY()
	for _, idx := range s.buildingsNear(orb.Bound{Min: pt, Max: pt}) {
		b := s.Buildings[idx]
		if p.Z < b.RoofAltitude() && planar.RingContains(b.Ring(), pt) {
			return idx
		}
	}
	return -1
}

// corners returns the convex corners of a building pushed outward by cornerOffset
func (s *Scene) corners(idx int) []orb.Point {
	walls := s.walls[idx]
	n := len(walls)
	var out []orb.Point
	for i := 0; i < n; i++ {
		in, outW := walls[(i+n-1)%n], walls[i]
		v := outW.p0
		d1 := orb.Point{in.p1[0] - in.p0[0], in.p1[1] - in.p0[1]}
		d2 := orb.Point{outW.p1[0] - outW.p0[0], outW.p1[1] - outW.p0[1]}
		if cross(d1, d2) <= 0 {
			continue
		}
		bx, by := in.normal[0]+outW.normal[0], in.normal[1]+outW.normal[1]
		l := math.Hypot(bx, by)
		if l == 0 {
			continue
		}
		out = append(out, orb.Point{v[0] + bx/l*cornerOffset, v[1] + by/l*cornerOffset})
	}
	return out
}

// ground returns the terrain altitude at p
func (s *Scene) ground(p orb.Point) float64 {
	return s.Terrain.Ground(p)
}
