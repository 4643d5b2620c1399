package spectrum

import (
	"fmt"
	"math"
)

// Atmosphere describes the air used for absorption (ISO 9613-1)
type Atmosphere struct {
	Temperature float64 // degrees Celsius
	Humidity    float64 // relative humidity in percent
	Pressure    float64 // kPa
}

// DefaultAtmosphere is 15 degrees, 70% humidity at sea level
var DefaultAtmosphere = Atmosphere{Temperature: 15, Humidity: 70, Pressure: 101.325}

const (
	referencePressure    = 101.325
	referenceTemperature = 293.15
	triplePoint          = 273.16
)

// Validate checks that the atmosphere is physically meaningful
func (a Atmosphere) Validate() error {
	if a.Temperature < -50 || a.Temperature > 60 {
		return fmt.Errorf("temperature %.1f outside [-50, 60]", a.Temperature)
	}
	if a.Humidity <= 0 || a.Humidity > 100 {
		return fmt.Errorf("humidity %.1f outside ]0, 100]", a.Humidity)
	}
	if a.Pressure <= 0 {
		return fmt.Errorf("pressure must be positive, got %.3f", a.Pressure)
	}
	return nil
}

// Coefficient returns the pure-tone absorption in dB/m at freq Hz
func (a Atmosphere) Coefficient(freq float64) float64 {
	t := a.Temperature + 273.15
	pa := a.Pressure / referencePressure
	if a.Pressure == 0 {
		pa = 1
	}

	c := -6.8346*math.Pow(triplePoint/t, 1.261) + 4.6151
	h := a.Humidity * math.Pow(10, c) / pa

	tr := t / referenceTemperature
	frO := pa * (24 + 4.04e4*h*(0.02+h)/(0.391+h))
	frN := pa * math.Pow(tr, -0.5) * (9 + 280*h*math.Exp(-4.170*(math.Pow(tr, -1.0/3)-1)))

	f2 := freq * freq
	return 8.686 * f2 * (1.84e-11/pa*math.Sqrt(tr) +
		math.Pow(tr, -2.5)*(0.01275*math.Exp(-2239.1/t)/(frO+f2/frO)+
			0.1068*math.Exp(-3352.0/t)/(frN+f2/frN)))
}

// Coefficients returns the absorption in dB/m for every band
func (a Atmosphere) Coefficients() []float64 {
	out := make([]float64, BandCount)
	for i, f := range bands {
		out[i] = a.Coefficient(float64(f))
	}
	return out
}
