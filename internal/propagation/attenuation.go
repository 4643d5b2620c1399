package propagation

import (
	"math"

	"noisemap/internal/spectrum"
)

const (
	// minDistance is the reference distance used for coincident points
	minDistance = 1.0
	// maxDiffractionLoss caps the diffraction term
	maxDiffractionLoss = 25.0
)

// pathTerms holds the geometric inputs of the attenuation of one path
type pathTerms struct {
	length      float64 // 3-D path length
	groundDist  float64 // planar path length, 0 disables the ground term
	hs, hr      float64 // source and receiver heights above ground
	delta       float64 // path length difference, negative when not diffracted
	edgeSpan    float64 // distance between first and last diffraction edge
	absorptions [][]float64
}

// groundAttenuation is ISO 9613-2 eq. (10) scaled by the ground factor
func groundAttenuation(g, hs, hr, d float64) float64 {
	if g == 0 || d <= 0 {
		return 0
	}
	hm := math.Max(0, (hs+hr)/2)
	a := 4.8 - (2*hm/d)*(17+300/d)
	if a < 0 {
		return 0
	}
	return a * g
}

// diffractionLoss returns the NMPB 2008 diffraction attenuation of band i
func diffractionLoss(delta, e float64, band int) float64 {
	lambda := spectrum.Wavelength(band)
	c := 1.0
	if e > 0.3 {
		k := (5 * lambda / e) * (5 * lambda / e)
		c = (1 + k) / (1.0/3 + k)
	}
	x := 40 * c * delta / lambda
	if x < -2 {
		return 0
	}
	return math.Min(10*math.Log10(3+x), maxDiffractionLoss)
}

// energy fills the attenuation and energy of a path emitted with power
func (e *Engine) energy(p *Path, terms pathTerms, power, directivity []float64) {
	d := math.Max(terms.length, minDistance)
	divergence := 10 * math.Log10(4*math.Pi*d*d)
	agr := groundAttenuation(e.settings.GroundFactor, terms.hs, terms.hr, terms.groundDist)

	p.Attenuation = make([]float64, len(power))
	p.Energy = make([]float64, len(power))
	for i, w := range power {
		a := divergence + e.airAbsorption[i]*d + agr
		if terms.delta >= 0 {
			a += diffractionLoss(terms.delta, terms.edgeSpan, i)
		}
		factor := 1.0
		for _, alpha := range terms.absorptions {
			if alpha != nil {
				factor *= 1 - alpha[i]
			}
		}
		if len(directivity) == len(power) {
			a -= directivity[i]
		}
		if factor <= 0 {
			p.Attenuation[i] = math.Inf(1)
			continue
		}
		a -= 10 * math.Log10(factor)
		p.Attenuation[i] = a
		p.Energy[i] = w * math.Pow(10, -a/10)
	}
}
