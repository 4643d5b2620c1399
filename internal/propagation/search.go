package propagation

import (
	"math"
	"sort"

	"noisemap/internal/model"

	"github.com/paulmach/orb"
)

// maxHullIterations bounds the growth of the lateral diffraction hull
const maxHullIterations = 32

// candidate is a path geometry waiting for its attenuation
type candidate struct {
	path  Path
	terms pathTerms
}

// pairPaths finds every path between one emitter and one receiver in a
// fixed order: direct or diffracted over the top, lateral diffraction by
// increasing order, reflections by increasing order, then reflections
// diffracted over the top by increasing total order.
func (e *Engine) pairPaths(s *Scene, em model.Emitter, rcv model.Receiver) []Path {
	src, dst := em.Position, rcv.Position
	direct := src.Distance(dst)
	if direct > e.settings.MaxSourceDistance {
		return nil
	}
	hs := src.Z - s.ground(src.XY())
	hr := dst.Z - s.ground(dst.XY())

	var found []candidate
	blocked := s.blocked(src, dst)
	if !blocked {
		found = append(found, candidate{
			path: Path{Kind: KindDirect, Points: []model.Point3D{src, dst}},
			terms: pathTerms{
				length:     direct,
				groundDist: src.Distance2D(dst),
				hs:         hs,
				hr:         hr,
				delta:      -1,
			},
		})
	} else if e.settings.VerticalDiffraction && e.settings.DiffractionOrder >= 1 {
		if top, ok := s.overTop([]model.Point3D{src, dst}); ok {
			found = append(found, candidate{
				path: Path{Kind: KindVerticalDiffraction, Points: top.points, DiffractionOrder: 1},
				terms: pathTerms{
					length:   polylineLength(top.points),
					delta:    top.delta,
					edgeSpan: top.edgeSpan,
				},
			})
		}
	}

	if blocked && e.settings.DiffractionOrder >= 1 {
		found = append(found, e.lateralPaths(s, src, dst, direct)...)
	}

	reflected, mixed := e.reflectionPaths(s, src, dst, hs, hr)
	found = append(found, reflected...)
	found = append(found, mixed...)

	paths := make([]Path, 0, len(found))
	for _, c := range found {
		p := c.path
		if c.terms.length > e.settings.MaxSourceDistance {
			continue
		}
		p.SourceID = em.SourceID
		p.ReceiverID = rcv.ID
		p.Length = c.terms.length
		e.energy(&p, c.terms, em.Power, em.Directivity)
		paths = append(paths, p)
	}
	return paths
}

// lateralPaths turns around the vertical edges of the buildings cutting the
// direct line. The buildings are gathered with a growing convex hull; its
// two sides joining the emitter and the receiver are the candidate paths.
func (e *Engine) lateralPaths(s *Scene, src, dst model.Point3D, direct float64) []candidate {
	a, b := src.XY(), dst.XY()
	if a == b {
		return nil
	}
	low := math.Min(src.Z, dst.Z)

	points := []orb.Point{a, b}
	included := map[int]bool{}
	for iter := 0; iter < maxHullIterations; iter++ {
		hull := convexHull(points)
		added := false
		for i := range hull {
			p, q := hull[i], hull[(i+1)%len(hull)]
			for _, idx := range s.buildingsNear(orb.Bound{Min: p, Max: p}.Extend(q)) {
				if included[idx] || s.Buildings[idx].RoofAltitude() <= low {
					continue
				}
				if len(footprintSpans(s.Buildings[idx].Ring(), p, q)) == 0 {
					continue
				}
				included[idx] = true
				points = append(points, s.corners(idx)...)
				added = true
			}
		}
		if !added {
			break
		}
	}

	hull := convexHull(points)
	is, ir := -1, -1
	for i, p := range hull {
		switch p {
		case a:
			is = i
		case b:
			ir = i
		}
	}
	if is < 0 || ir < 0 {
		return nil
	}

	n := len(hull)
	var chains [][]orb.Point
	for _, step := range []int{1, n - 1} {
		var chain []orb.Point
		for i := (is + step) % n; i != ir; i = (i + step) % n {
			chain = append(chain, hull[i])
		}
		chains = append(chains, chain)
	}

	var out []candidate
	for _, chain := range chains {
		if len(chain) == 0 || len(chain) > e.settings.DiffractionOrder {
			continue
		}
		planarPts := append(append([]orb.Point{a}, chain...), b)
		pts := interpolateHeights(planarPts, src.Z, dst.Z)

		free := true
		for i := 1; i < len(pts); i++ {
			if s.blocked(pts[i-1], pts[i]) {
				free = false
				break
			}
		}
		if !free {
			continue
		}

		length := polylineLength(pts)
		out = append(out, candidate{
			path: Path{Kind: KindLateralDiffraction, Points: pts, DiffractionOrder: len(chain)},
			terms: pathTerms{
				length:   length,
				delta:    length - direct,
				edgeSpan: polylineLength(pts[1 : len(pts)-1]),
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].path.DiffractionOrder < out[j].path.DiffractionOrder
	})
	return out
}

// interpolateHeights sets the altitude of every vertex linearly along the
// planar length of the polyline
func interpolateHeights(planarPts []orb.Point, zStart, zEnd float64) []model.Point3D {
	cum := make([]float64, len(planarPts))
	for i := 1; i < len(planarPts); i++ {
		cum[i] = cum[i-1] + math.Hypot(planarPts[i][0]-planarPts[i-1][0], planarPts[i][1]-planarPts[i-1][1])
	}
	total := cum[len(cum)-1]
	pts := make([]model.Point3D, len(planarPts))
	for i, p := range planarPts {
		t := 0.0
		if total > 0 {
			t = cum[i] / total
		}
		pts[i] = model.NewPoint3D(p, zStart+(zEnd-zStart)*t)
	}
	return pts
}

// imageState is a partial reflection path: the successive images of the
// emitter and the walls that produced them
type imageState struct {
	images []orb.Point
	walls  []wall
}

// reflectionPaths searches image sources breadth first up to the reflection
// order. Pure reflections and reflections diffracted over the top are
// returned separately, both by increasing order.
func (e *Engine) reflectionPaths(s *Scene, src, dst model.Point3D, hs, hr float64) (pure, mixed []candidate) {
	if e.settings.ReflectionOrder == 0 {
		return nil, nil
	}
	walls := s.wallsNear(src.XY(), dst.XY(), e.settings.MaxReflectionDistance)
	if len(walls) == 0 {
		return nil, nil
	}
	diffract := e.settings.VerticalDiffraction && e.settings.DiffractionOrder >= 1

	queue := []imageState{{images: []orb.Point{src.XY()}}}
	for order := 1; order <= e.settings.ReflectionOrder && len(queue) > 0; order++ {
		var next []imageState
		for _, st := range queue {
			from := st.images[len(st.images)-1]
			for _, w := range walls {
				if n := len(st.walls); n > 0 && st.walls[n-1].building == w.building && st.walls[n-1].edge == w.edge {
					continue
				}
				if dot(sub(from, w.p0), w.normal) <= epsilon {
					continue
				}
				ns := imageState{
					images: append(append([]orb.Point{}, st.images...), mirror(from, w.p0, w.p1)),
					walls:  append(append([]wall{}, st.walls...), w),
				}
				next = append(next, ns)

				points, ok := reflectionPoints(dst.XY(), ns)
				if !ok {
					continue
				}
				c, m, ok := e.reflectedCandidate(s, src, dst, points, ns.walls, hs, hr, diffract)
				if !ok {
					continue
				}
				if m {
					mixed = append(mixed, c)
				} else {
					pure = append(pure, c)
				}
			}
		}
		queue = next
	}
	return pure, mixed
}

// reflectionPoints walks back from the receiver through every image and
// returns the reflection points, each strictly inside its wall
func reflectionPoints(receiver orb.Point, st imageState) ([]orb.Point, bool) {
	k := len(st.walls)
	last := st.walls[k-1]
	if dot(sub(receiver, last.p0), last.normal) <= epsilon {
		return nil, false
	}
	points := make([]orb.Point, k)
	target := receiver
	for j := k - 1; j >= 0; j-- {
		w := st.walls[j]
		image := st.images[j+1]
		t, u, ok := intersect(image, target, w.p0, w.p1)
		if !ok || u <= epsilon || u >= 1-epsilon || t <= epsilon || t >= 1-epsilon {
			return nil, false
		}
		p := orb.Point{image[0] + (target[0]-image[0])*t, image[1] + (target[1]-image[1])*t}
		points[j] = p
		target = p
	}
	return points, true
}

// reflectedCandidate checks the height of every reflection point and the
// visibility of every leg. A blocked path may still go over the top when
// diffract is set; the second result reports that case.
func (e *Engine) reflectedCandidate(s *Scene, src, dst model.Point3D, points []orb.Point, walls []wall, hs, hr float64, diffract bool) (candidate, bool, bool) {
	planarPts := make([]orb.Point, 0, len(points)+2)
	planarPts = append(planarPts, src.XY())
	planarPts = append(planarPts, points...)
	planarPts = append(planarPts, dst.XY())
	pts := interpolateHeights(planarPts, src.Z, dst.Z)

	absorptions := make([][]float64, len(walls))
	for j, w := range walls {
		bld := s.Buildings[w.building]
		z := pts[j+1].Z
		if z > bld.RoofAltitude() || z < s.ground(points[j]) {
			return candidate{}, false, false
		}
		absorptions[j] = e.settings.absorption(bld.Material)
	}

	free := true
	for i := 1; i < len(pts); i++ {
		if s.blocked(pts[i-1], pts[i]) {
			free = false
			break
		}
	}
	if free {
		return candidate{
			path: Path{Kind: KindReflection, Points: pts, ReflectionOrder: len(walls)},
			terms: pathTerms{
				length:      polylineLength(pts),
				groundDist:  planarLength(pts),
				hs:          hs,
				hr:          hr,
				delta:       -1,
				absorptions: absorptions,
			},
		}, false, true
	}
	if !diffract {
		return candidate{}, false, false
	}

	top, ok := s.overTop(pts)
	if !ok {
		return candidate{}, false, false
	}
	for j, idx := range top.reflects {
		if top.points[idx].Z > s.Buildings[walls[j].building].RoofAltitude() {
			return candidate{}, false, false
		}
	}
	return candidate{
		path: Path{
			Kind:             KindReflectionDiffraction,
			Points:           top.points,
			ReflectionOrder:  len(walls),
			DiffractionOrder: 1,
		},
		terms: pathTerms{
			length:      polylineLength(top.points),
			delta:       top.delta,
			edgeSpan:    top.edgeSpan,
			absorptions: absorptions,
		},
	}, true, true
}
