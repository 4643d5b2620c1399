package propagation

import (
	"math"
	"sort"

	"noisemap/internal/model"

	"github.com/paulmach/orb"
)

// blocked reports whether buildings or terrain obstruct the 3-D segment a-b
func (s *Scene) blocked(a, b model.Point3D) bool {
	return s.buildingsBlock(a, b) || s.Terrain.Blocks(a, b)
}

// buildingsBlock reports whether a building prism cuts the 3-D segment a-b
func (s *Scene) buildingsBlock(a, b model.Point3D) bool {
	pa, pb := a.XY(), b.XY()
	low := math.Min(a.Z, b.Z)
	for _, idx := range s.buildingsNear(orb.Bound{Min: pa, Max: pa}.Extend(pb)) {
		bld := s.Buildings[idx]
		roof := bld.RoofAltitude()
		if low >= roof {
			continue
		}
		for _, sp := range footprintSpans(bld.Ring(), pa, pb) {
			z0 := a.Z + (b.Z-a.Z)*sp.t0
			z1 := a.Z + (b.Z-a.Z)*sp.t1
			if math.Min(z0, z1) < roof-epsilon {
				return true
			}
		}
	}
	return false
}

// unfoldedProfile lays the terrain and the roofs crossed by the polyline pts
// on a single distance axis. The first and last points are the path ends.
func (s *Scene) unfoldedProfile(pts []model.Point3D) []profilePoint {
	out := []profilePoint{{dist: 0, z: pts[0].Z}}
	offset := 0.0
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		length := a.Distance2D(b)
		for _, smp := range s.Terrain.Profile(a, b) {
			out = append(out, profilePoint{dist: offset + smp.Dist, z: smp.Z})
		}
		pa, pb := a.XY(), b.XY()
		for _, idx := range s.buildingsNear(orb.Bound{Min: pa, Max: pa}.Extend(pb)) {
			bld := s.Buildings[idx]
			roof := bld.RoofAltitude()
			for _, sp := range footprintSpans(bld.Ring(), pa, pb) {
				out = append(out,
					profilePoint{dist: offset + sp.t0*length, z: roof},
					profilePoint{dist: offset + sp.t1*length, z: roof},
				)
			}
		}
		offset += length
	}
	end := profilePoint{dist: offset, z: pts[len(pts)-1].Z}

	inner := out[1:]
	sort.SliceStable(inner, func(i, j int) bool { return inner[i].dist < inner[j].dist })
	return append(out, end)
}

// pointAt returns the planar position at distance dist along the polyline pts
func pointAt(pts []model.Point3D, dist float64) orb.Point {
	for i := 1; i < len(pts); i++ {
		l := pts[i-1].Distance2D(pts[i])
		if dist <= l || i == len(pts)-1 {
			t := 0.0
			if l > 0 {
				t = math.Min(1, dist/l)
			}
			return pts[i-1].Lerp(pts[i], t).XY()
		}
		dist -= l
	}
	return pts[len(pts)-1].XY()
}

// hullHeight returns the altitude of the hull polyline at dist
func hullHeight(hull []profilePoint, dist float64) float64 {
	for i := 1; i < len(hull); i++ {
		if dist <= hull[i].dist {
			span := hull[i].dist - hull[i-1].dist
			if span <= 0 {
				return hull[i].z
			}
			t := (dist - hull[i-1].dist) / span
			return hull[i-1].z + (hull[i].z-hull[i-1].z)*t
		}
	}
	return hull[len(hull)-1].z
}

// topPath is the result of a diffraction over the top of a vertical profile
type topPath struct {
	points   []model.Point3D
	reflects []int // index in points of every reflection point of pts
	delta    float64
	edgeSpan float64
}

// overTop bends the unfolded polyline pts over the upper hull of its
// vertical profile. Intermediate points of pts are kept as reflection points
// with the altitude of the hull.
func (s *Scene) overTop(pts []model.Point3D) (topPath, bool) {
	hull := upperHull(s.unfoldedProfile(pts))
	if len(hull) < 3 {
		return topPath{}, false
	}

	edges := hull[1 : len(hull)-1]
	var res topPath
	res.points = append(res.points, pts[0])

	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		cum[i] = cum[i-1] + pts[i-1].Distance2D(pts[i])
	}

	ei := 0
	for i := 1; i < len(pts)-1; i++ {
		for ei < len(edges) && edges[ei].dist < cum[i] {
			res.points = append(res.points, model.NewPoint3D(pointAt(pts, edges[ei].dist), edges[ei].z))
			ei++
		}
		res.reflects = append(res.reflects, len(res.points))
		res.points = append(res.points, pts[i].WithZ(hullHeight(hull, cum[i])))
	}
	for ; ei < len(edges); ei++ {
		res.points = append(res.points, model.NewPoint3D(pointAt(pts, edges[ei].dist), edges[ei].z))
	}
	res.points = append(res.points, pts[len(pts)-1])

	total := cum[len(cum)-1]
	straight := math.Hypot(total, pts[len(pts)-1].Z-pts[0].Z)
	res.delta = polylineLength(res.points) - straight
	for i := 1; i < len(edges); i++ {
		res.edgeSpan += math.Hypot(edges[i].dist-edges[i-1].dist, edges[i].z-edges[i-1].z)
	}
	return res, true
}
