package spectrum

import (
	"fmt"
	"math"
)

// tramAttenuation is the spectral repartition of tram rolling noise on non pervious ground
var tramAttenuation = [BandCount]float64{
	-11.3, -11.3, -11.3, -11.3, -11.3, -11.3,
	-11.3, -11.3, -11.3, -11.3, -11.3, -11.3,
	-16.3, -16.3, -16.3,
	-21.3, -21.3, -21.3,
}

// roadTrafficSpectrum is the normalized A-weighted road traffic spectrum (EN 1793-3)
var roadTrafficSpectrum = [BandCount]float64{
	-20, -20, -18, -16, -15, -14, -13, -12, -11, -9, -8, -9, -10, -11, -13, -15, -16, -18,
}

// aWeighting holds the A-weighting correction of every band
var aWeighting = [BandCount]float64{
	-19.1, -16.1, -13.4, -10.9, -8.6, -6.6, -4.8, -3.2, -1.9, -0.8, 0, 0.6, 1.0, 1.2, 1.3, 1.2, 1.0, 0.5,
}

// Table is an immutable frequency to dB lookup
type Table struct {
	name   string
	values [BandCount]float64
}

var (
	Tram        = Table{name: "tram", values: tramAttenuation}
	RoadTraffic = Table{name: "road", values: roadTrafficSpectrum}
	AWeighting  = Table{name: "A-weighting", values: aWeighting}
)

// Name returns the table name
func (t Table) Name() string {
	return t.name
}

// Lookup returns the dB value of freq, or ErrUnknownFrequency
func (t Table) Lookup(freq int) (float64, error) {
	i, err := BandIndex(freq)
	if err != nil {
		return 0, fmt.Errorf("%s table: %w", t.name, err)
	}
	return t.values[i], nil
}

// Values returns a copy of all band values
func (t Table) Values() []float64 {
	out := make([]float64, BandCount)
	copy(out, t.values[:])
	return out
}

// TramAttenuation returns the tram spectral attenuation of freq
func TramAttenuation(freq int) (float64, error) {
	return Tram.Lookup(freq)
}

// RoadTrafficAttenuation returns the normalized road traffic spectrum value of freq
func RoadTrafficAttenuation(freq int) (float64, error) {
	return RoadTraffic.Lookup(freq)
}

// AWeight returns the A-weighting correction of freq
func AWeight(freq int) (float64, error) {
	return AWeighting.Lookup(freq)
}

// PowerFromLevel distributes a global A-weighted sound power level over the
// bands following the shape of table and returns linear power per band
func PowerFromLevel(lwa float64, table Table) []float64 {
	total := 0.0
	for _, v := range table.values {
		total += math.Pow(10, v/10)
	}
	norm := 10 * math.Log10(total)

	out := make([]float64, BandCount)
	for i, v := range table.values {
		out[i] = ToLinear(lwa + v - norm)
	}
	return out
}

// WeightA applies the A-weighting to an unweighted spectrum in dB
func WeightA(levels []float64) ([]float64, error) {
	if len(levels) != BandCount {
		return nil, fmt.Errorf("spectrum has %d bands, expected %d", len(levels), BandCount)
	}
	out := make([]float64, BandCount)
	for i, l := range levels {
		out[i] = l + aWeighting[i]
	}
	return out, nil
}
