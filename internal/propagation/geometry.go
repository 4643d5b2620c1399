package propagation

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const epsilon = 1e-9

// minSpan is the shortest planar stretch considered as crossing a footprint
const minSpan = 1e-6

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func sub(a, b orb.Point) orb.Point {
	return orb.Point{a[0] - b[0], a[1] - b[1]}
}

func dot(a, b orb.Point) float64 {
	return a[0]*b[0] + a[1]*b[1]
}

// intersect returns the parameters t on a-b and u on c-d of the crossing point
func intersect(a, b, c, d orb.Point) (t, u float64, ok bool) {
	r := sub(b, a)
	s := sub(d, c)
	den := cross(r, s)
	if math.Abs(den) < epsilon {
		return 0, 0, false
	}
	ca := sub(c, a)
	t = cross(ca, s) / den
	u = cross(ca, r) / den
	if t < -epsilon || t > 1+epsilon || u < -epsilon || u > 1+epsilon {
		return 0, 0, false
	}
	return t, u, true
}

// segmentDistance returns the planar distance between segments a-b and c-d
func segmentDistance(a, b, c, d orb.Point) float64 {
	if _, _, ok := intersect(a, b, c, d); ok {
		return 0
	}
	return math.Min(
		math.Min(planar.DistanceFromSegment(c, d, a), planar.DistanceFromSegment(c, d, b)),
		math.Min(planar.DistanceFromSegment(a, b, c), planar.DistanceFromSegment(a, b, d)),
	)
}

// mirror returns the image of p across the line through a and b
func mirror(p, a, b orb.Point) orb.Point {
	d := sub(b, a)
	l2 := dot(d, d)
	t := dot(sub(p, a), d) / l2
	foot := orb.Point{a[0] + d[0]*t, a[1] + d[1]*t}
	return orb.Point{2*foot[0] - p[0], 2*foot[1] - p[1]}
}

// span is a parameter interval of a segment
type span struct {
	t0, t1 float64
}

// footprintSpans returns the parts of the planar segment a-b lying inside ring
func footprintSpans(ring orb.Ring, a, b orb.Point) []span {
	length := planar.Distance(a, b)
	if length < minSpan {
		return nil
	}
	ts := []float64{0, 1}
	for i := 0; i+1 < len(ring); i++ {
		if t, _, ok := intersect(a, b, ring[i], ring[i+1]); ok {
			ts = append(ts, math.Max(0, math.Min(1, t)))
		}
	}
	sort.Float64s(ts)

	var out []span
	for i := 1; i < len(ts); i++ {
		t0, t1 := ts[i-1], ts[i]
		if (t1-t0)*length < minSpan {
			continue
		}
		tm := (t0 + t1) / 2
		mid := orb.Point{a[0] + (b[0]-a[0])*tm, a[1] + (b[1]-a[1])*tm}
		if !planar.RingContains(ring, mid) {
			continue
		}
		if n := len(out); n > 0 && math.Abs(out[n-1].t1-t0) < epsilon {
			out[n-1].t1 = t1
			continue
		}
		out = append(out, span{t0: t0, t1: t1})
	}
	return out
}

// convexHull returns the planar convex hull in counter-clockwise order
func convexHull(points []orb.Point) []orb.Point {
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})
	if len(pts) < 3 {
		return pts
	}

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(sub(hull[len(hull)-1], hull[len(hull)-2]), sub(p, hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(sub(hull[len(hull)-1], hull[len(hull)-2]), sub(p, hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// profilePoint is a point of an unfolded vertical profile
type profilePoint struct {
	dist float64
	z    float64
}

// upperHull returns the upper convex hull of a profile whose first and last
// points are the path ends. pts must be sorted by dist.
func upperHull(pts []profilePoint) []profilePoint {
	hull := make([]profilePoint, 0, len(pts))
	for _, p := range pts {
		for len(hull) >= 2 {
			o, a := hull[len(hull)-2], hull[len(hull)-1]
			if (a.dist-o.dist)*(p.z-o.z)-(a.z-o.z)*(p.dist-o.dist) >= 0 {
				hull = hull[:len(hull)-1]
				continue
			}
			break
		}
		hull = append(hull, p)
	}
	return hull
}
