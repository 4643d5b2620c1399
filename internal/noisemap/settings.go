package noisemap

import (
	"fmt"

	"noisemap/internal/config"
	"noisemap/internal/propagation"
	"noisemap/internal/spectrum"
)

// validateConfig checks the options the orchestrator needs on top of the engine settings
func validateConfig(cfg config.Propagation) error {
	if cfg.HeightField == "" {
		return fmt.Errorf("%w: height field name is required", ErrConfiguration)
	}
	if cfg.CellSize <= 0 {
		return fmt.Errorf("%w: cell size must be positive", ErrConfiguration)
	}
	if cfg.LineSourceStep <= 0 {
		return fmt.Errorf("%w: line source step must be positive", ErrConfiguration)
	}
	if cfg.DEMResolution < 0 {
		return fmt.Errorf("%w: DEM resolution must not be negative", ErrConfiguration)
	}
	if cfg.WallAbsorption < 0 || cfg.WallAbsorption > 1 {
		return fmt.Errorf("%w: wall absorption %.2f outside [0, 1]", ErrConfiguration, cfg.WallAbsorption)
	}
	return nil
}

// SettingsFromConfig builds the engine settings. The default material gets
// the uniform wall absorption unless materials defines it.
func SettingsFromConfig(cfg config.Propagation, materials map[string][]float64) propagation.Settings {
	mats := make(map[string][]float64, len(materials)+1)
	for name, alpha := range materials {
		mats[name] = alpha
	}
	if _, ok := mats[propagation.DefaultMaterial]; !ok {
		alpha := make([]float64, spectrum.BandCount)
		for i := range alpha {
			alpha[i] = cfg.WallAbsorption
		}
		mats[propagation.DefaultMaterial] = alpha
	}

	return propagation.Settings{
		DiffractionOrder:      cfg.DiffractionOrder,
		ReflectionOrder:       cfg.ReflectionOrder,
		VerticalDiffraction:   cfg.VerticalDiffraction,
		MaxSourceDistance:     cfg.MaxSourceDistance,
		MaxReflectionDistance: cfg.MaxReflectionDistance,
		GroundFactor:          cfg.GroundFactor,
		Atmosphere: spectrum.Atmosphere{
			Temperature: cfg.Temperature,
			Humidity:    cfg.Humidity,
			Pressure:    101.325,
		},
		Materials: mats,
		Workers:   cfg.Workers,
	}
}
