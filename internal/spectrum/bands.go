package spectrum

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownFrequency is returned when a frequency is not one of the standard bands
var ErrUnknownFrequency = errors.New("unknown frequency band")

// bands holds the third-octave center frequencies in Hz
var bands = [...]int{100, 125, 160, 200, 250, 315, 400, 500, 630, 800, 1000, 1250, 1600, 2000, 2500, 3150, 4000, 5000}

// BandCount is the number of third-octave bands used everywhere in the engine
const BandCount = len(bands)

// Bands returns a copy of the center frequencies
func Bands() []int {
	out := make([]int, BandCount)
	copy(out, bands[:])
	return out
}

// BandIndex returns the position of freq in Bands
func BandIndex(freq int) (int, error) {
	for i, f := range bands {
		if f == freq {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%d Hz: %w", freq, ErrUnknownFrequency)
}

// Wavelength returns the wavelength in meters of the i-th band at 340 m/s
func Wavelength(i int) float64 {
	return 340.0 / float64(bands[i])
}

// ToLinear converts a level in dB to a linear energy relative to the reference
func ToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// ToDB converts linear energy to dB. Energy at or below the reference of 1,
// silence included, maps to 0 dB so levels are never negative.
func ToDB(energy float64) float64 {
	if energy <= 1 {
		return 0
	}
	return 10 * math.Log10(energy)
}

// ToLinearBands converts a per-band spectrum from dB to linear
func ToLinearBands(levels []float64) []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = ToLinear(l)
	}
	return out
}

// ToDBBands converts per-band energies to dB
func ToDBBands(energy []float64) []float64 {
	out := make([]float64, len(energy))
	for i, e := range energy {
		out[i] = ToDB(e)
	}
	return out
}

// Global returns the overall level of per-band energies
func Global(energy []float64) float64 {
	return ToDB(floats.Sum(energy))
}
