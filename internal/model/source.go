package model

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Source is a point or line noise source. Power is linear and A-weighted per
// band, in W for points and W/m for lines.
type Source struct {
	ID          int64
	Geometry    orb.Geometry // orb.Point or orb.LineString
	Z           float64      // altitude, or height above ground when the scene uses relative heights
	Power       []float64
	Directivity []float64 // optional dB correction per band
}

// Emitter is a point emitter produced by discretizing a source
type Emitter struct {
	SourceID    int64
	Position    Point3D
	Power       []float64
	Directivity []float64
}

// Bound returns the planar bounds of the source geometry
func (s *Source) Bound() orb.Bound {
	return s.Geometry.Bound()
}

// Discretize samples the source into point emitters. Line sources are cut into
// pieces no longer than step, each emitting from its middle with the power of
// its length.
func (s *Source) Discretize(step float64) ([]Emitter, error) {
	switch g := s.Geometry.(type) {
	case orb.Point:
		return []Emitter{s.emitter(g, 1)}, nil
	case orb.LineString:
		if step <= 0 {
			return nil, fmt.Errorf("source %d: line step must be positive", s.ID)
		}
		return s.discretizeLine(g, step), nil
	case orb.MultiLineString:
		if step <= 0 {
			return nil, fmt.Errorf("source %d: line step must be positive", s.ID)
		}
		var out []Emitter
		for _, ls := range g {
			out = append(out, s.discretizeLine(ls, step)...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("source %d: unsupported geometry %T", s.ID, s.Geometry)
	}
}

func (s *Source) discretizeLine(ls orb.LineString, step float64) []Emitter {
	var out []Emitter
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		length := planar.Distance(a, b)
		if length == 0 {
			continue
		}
		n := int(math.Ceil(length / step))
		piece := length / float64(n)
		for k := 0; k < n; k++ {
			t := (float64(k) + 0.5) / float64(n)
			p := orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
			out = append(out, s.emitter(p, piece))
		}
	}
	return out
}

func (s *Source) emitter(p orb.Point, scale float64) Emitter {
	power := make([]float64, len(s.Power))
	for i, w := range s.Power {
		power[i] = w * scale
	}
	return Emitter{
		SourceID:    s.ID,
		Position:    NewPoint3D(p, s.Z),
		Power:       power,
		Directivity: s.Directivity,
	}
}

// Receiver is a fixed evaluation point. ID is stable across cells.
type Receiver struct {
	ID       int64
	Position Point3D
}
