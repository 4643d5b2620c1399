package model

import (
	"math"

	"github.com/paulmach/orb"
)

// Point3D is a position in the local metric frame. Z is an altitude.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewPoint3D builds a point from a planar position and an altitude
func NewPoint3D(p orb.Point, z float64) Point3D {
	return Point3D{X: p[0], Y: p[1], Z: z}
}

// XY returns the planar projection of the point
func (p Point3D) XY() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Distance returns the 3-D distance between two points
func (p Point3D) Distance(q Point3D) float64 {
	dx, dy, dz := q.X-p.X, q.Y-p.Y, q.Z-p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D returns the planar distance between two points
func (p Point3D) Distance2D(q Point3D) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Lerp returns the point at fraction t of the way from p to q
func (p Point3D) Lerp(q Point3D, t float64) Point3D {
	return Point3D{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
		Z: p.Z + (q.Z-p.Z)*t,
	}
}

// WithZ returns a copy of the point at another altitude
func (p Point3D) WithZ(z float64) Point3D {
	return Point3D{X: p.X, Y: p.Y, Z: z}
}
