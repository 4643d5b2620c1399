package util

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

const earthRadiusMeters = 6371000.0

func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	// Convert coordinates from degrees to S2 points
	point1 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lng1))
	point2 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lng2))

	// Calculate angle between points
	angle := s1.Angle(s2.ChordAngleBetweenPoints(point1, point2).Angle())

	// Convert angle to distance on Earth's surface
	return angle.Radians() * earthRadiusMeters
}

// Projection maps lon/lat degrees to a local metric frame centered on an
// origin. It is accurate for study areas of a few kilometers.
type Projection struct {
	Origin       orb.Point // lon, lat
	metersPerLng float64
	metersPerLat float64
}

// NewProjection creates a local frame centered on origin (lon, lat)
func NewProjection(origin orb.Point) *Projection {
	lng, lat := origin[0], origin[1]
	return &Projection{
		Origin:       origin,
		metersPerLng: HaversineDistance(lat, lng-0.5, lat, lng+0.5),
		metersPerLat: HaversineDistance(lat-0.5, lng, lat+0.5, lng),
	}
}

// Project converts a lon/lat point to meters east and north of the origin
func (p *Projection) Project(pt orb.Point) orb.Point {
	return orb.Point{
		(pt[0] - p.Origin[0]) * p.metersPerLng,
		(pt[1] - p.Origin[1]) * p.metersPerLat,
	}
}

// Unproject converts a local point back to lon/lat
func (p *Projection) Unproject(pt orb.Point) orb.Point {
	return orb.Point{
		p.Origin[0] + pt[0]/p.metersPerLng,
		p.Origin[1] + pt[1]/p.metersPerLat,
	}
}

// ProjectRing projects every vertex of a ring
func (p *Projection) ProjectRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		out[i] = p.Project(pt)
	}
	return out
}
