package propagation

import (
	"noisemap/internal/model"
)

// PathKind tells how a path leaves the straight line
type PathKind int

const (
	KindDirect PathKind = iota
	KindVerticalDiffraction
	KindLateralDiffraction
	KindReflection
	KindReflectionDiffraction

	// KindCount is the number of path kinds
	KindCount = int(KindReflectionDiffraction) + 1
)

func (k PathKind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindVerticalDiffraction:
		return "vertical-diffraction"
	case KindLateralDiffraction:
		return "lateral-diffraction"
	case KindReflection:
		return "reflection"
	case KindReflectionDiffraction:
		return "reflection-diffraction"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k PathKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Path is one accepted propagation path between an emitter and a receiver
type Path struct {
	SourceID         int64           `json:"source_id"`
	ReceiverID       int64           `json:"receiver_id"`
	Kind             PathKind        `json:"kind"`
	Points           []model.Point3D `json:"points"`
	DiffractionOrder int             `json:"diffraction_order"`
	ReflectionOrder  int             `json:"reflection_order"`
	Length           float64         `json:"length"`
	Attenuation      []float64       `json:"attenuation"` // total attenuation per band in dB, spreading included
	Energy           []float64       `json:"energy"`      // linear energy per band at the receiver
}

// Order returns the total number of bends of the path
func (p *Path) Order() int {
	return p.DiffractionOrder + p.ReflectionOrder
}

// polylineLength returns the 3-D length of a polyline
func polylineLength(pts []model.Point3D) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += pts[i-1].Distance(pts[i])
	}
	return total
}

// planarLength returns the 2-D length of a polyline
func planarLength(pts []model.Point3D) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += pts[i-1].Distance2D(pts[i])
	}
	return total
}
