package propagation

import (
	"errors"
	"fmt"
	"sort"

	"noisemap/internal/spectrum"
)

// ErrInvalidSettings is returned when engine settings cannot be used
var ErrInvalidSettings = errors.New("invalid propagation settings")

// DefaultMaterial is the absorption table used when a facade material is unknown
const DefaultMaterial = "default"

// Settings configures the path search and the attenuation terms
type Settings struct {
	DiffractionOrder      int
	ReflectionOrder       int
	VerticalDiffraction   bool
	MaxSourceDistance     float64
	MaxReflectionDistance float64
	GroundFactor          float64
	Atmosphere            spectrum.Atmosphere
	Materials             map[string][]float64 // facade absorption per band
	Workers               int                  // receivers evaluated in parallel inside a cell
}

// DefaultSettings returns a usable configuration
func DefaultSettings() Settings {
	return Settings{
		DiffractionOrder:      1,
		ReflectionOrder:       1,
		VerticalDiffraction:   true,
		MaxSourceDistance:     750,
		MaxReflectionDistance: 400,
		GroundFactor:          0,
		Atmosphere:            spectrum.DefaultAtmosphere,
		Materials: map[string][]float64{
			DefaultMaterial: uniform(0.1),
		},
		Workers: 4,
	}
}

func uniform(v float64) []float64 {
	out := make([]float64, spectrum.BandCount)
	for i := range out {
		out[i] = v
	}
	return out
}

// Validate checks every option and wraps ErrInvalidSettings
func (s Settings) Validate() error {
	if s.DiffractionOrder < 0 {
		return fmt.Errorf("%w: diffraction order %d < 0", ErrInvalidSettings, s.DiffractionOrder)
	}
	if s.ReflectionOrder < 0 {
		return fmt.Errorf("%w: reflection order %d < 0", ErrInvalidSettings, s.ReflectionOrder)
	}
	if s.MaxSourceDistance <= 0 {
		return fmt.Errorf("%w: max source distance must be positive", ErrInvalidSettings)
	}
	if s.MaxReflectionDistance <= 0 {
		return fmt.Errorf("%w: max reflection distance must be positive", ErrInvalidSettings)
	}
	if s.GroundFactor < 0 || s.GroundFactor > 1 {
		return fmt.Errorf("%w: ground factor %.2f outside [0, 1]", ErrInvalidSettings, s.GroundFactor)
	}
	if err := s.Atmosphere.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	names := make([]string, 0, len(s.Materials))
	for name := range s.Materials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		alpha := s.Materials[name]
		if len(alpha) != spectrum.BandCount {
			return fmt.Errorf("%w: material %q has %d bands, expected %d",
				ErrInvalidSettings, name, len(alpha), spectrum.BandCount)
		}
		for i, a := range alpha {
			if a < 0 || a > 1 {
				return fmt.Errorf("%w: material %q absorption %.3f outside [0, 1] at band %d",
					ErrInvalidSettings, name, a, i)
			}
		}
	}
	return nil
}

// absorption returns the absorption spectrum of a facade material
func (s Settings) absorption(material string) []float64 {
	if a, ok := s.Materials[material]; ok {
		return a
	}
	if a, ok := s.Materials[DefaultMaterial]; ok {
		return a
	}
	return nil
}
