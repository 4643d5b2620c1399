package scene

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"noisemap/internal/model"
	"noisemap/internal/spectrum"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidFeature is returned for features that cannot be turned into scene objects
var ErrInvalidFeature = errors.New("invalid feature")

// Feature layers, read from the "layer" property
const (
	LayerSource   = "source"
	LayerReceiver = "receiver"
	LayerBuilding = "building"
	LayerDEM      = "dem"
)

// reserved building properties, everything else goes to Tags
var buildingProperties = map[string]bool{
	"layer": true, "id": true, "name": true, "levels": true, "material": true,
}

// LoadFile reads a GeoJSON FeatureCollection from path and indexes it
func (s *SceneService) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scene file: %w", err)
	}
	return s.LoadGeoJSON(data)
}

// LoadGeoJSON adds every feature of a FeatureCollection to the scene and
// rebuilds the indexes. Features that cannot be used are logged and skipped.
func (s *SceneService) LoadGeoJSON(data []byte) error {
	start := time.Now()
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse scene: %w", err)
	}

	skipped := 0
	for i, f := range fc.Features {
		if err := s.addFeature(f); err != nil {
			log.Printf("WARN: skipping feature %d: %v", i, err)
			skipped++
		}
	}
	s.RebuildIndex()

	log.Printf("Scene loaded: %d features, %d skipped in %v", len(fc.Features), skipped, time.Since(start))
	return nil
}

func (s *SceneService) addFeature(f *geojson.Feature) error {
	props := f.Properties
	id := int64(props.MustInt("id", 0))

	switch layer := props.MustString("layer", ""); layer {
	case LayerSource:
		src, err := sourceFromFeature(id, f)
		if err != nil {
			return err
		}
		s.AddSource(src)
	case LayerReceiver:
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return fmt.Errorf("%w: receiver %d must be a Point, got %T", ErrInvalidFeature, id, f.Geometry)
		}
		s.AddReceiver(&model.Receiver{ID: id, Position: model.NewPoint3D(p, props.MustFloat64("z", 0))})
	case LayerBuilding:
		b, err := s.buildingFromFeature(id, f)
		if err != nil {
			return err
		}
		s.AddBuilding(b)
	case LayerDEM:
		switch g := f.Geometry.(type) {
		case orb.Point:
			s.AddTerrain(model.NewPoint3D(g, props.MustFloat64("z", 0)))
		case orb.MultiPoint:
			z := props.MustFloat64("z", 0)
			for _, p := range g {
				s.AddTerrain(model.NewPoint3D(p, z))
			}
		default:
			return fmt.Errorf("%w: DEM sample must be a Point, got %T", ErrInvalidFeature, f.Geometry)
		}
	default:
		return fmt.Errorf("%w: unknown layer %q", ErrInvalidFeature, layer)
	}
	return nil
}

// sourceFromFeature reads either a per-band "power" array in dB or a global
// "lwa" level spread over the "spectrum" table
func sourceFromFeature(id int64, f *geojson.Feature) (*model.Source, error) {
	switch f.Geometry.(type) {
	case orb.Point, orb.LineString, orb.MultiLineString:
	default:
		return nil, fmt.Errorf("%w: source %d has unsupported geometry %T", ErrInvalidFeature, id, f.Geometry)
	}

	props := f.Properties
	src := &model.Source{
		ID:       id,
		Geometry: f.Geometry,
		Z:        props.MustFloat64("z", 0),
	}

	if levels, ok := props["power"]; ok {
		db, err := floatArray(levels)
		if err != nil {
			return nil, fmt.Errorf("%w: source %d power: %v", ErrInvalidFeature, id, err)
		}
		src.Power = spectrum.ToLinearBands(db)
	} else if lwa, ok := props["lwa"].(float64); ok {
		table := spectrum.RoadTraffic
		if props.MustString("spectrum", "") == spectrum.Tram.Name() {
			table = spectrum.Tram
		}
		src.Power = spectrum.PowerFromLevel(lwa, table)
	} else {
		return nil, fmt.Errorf("%w: source %d has neither power nor lwa", ErrInvalidFeature, id)
	}

	if dir, ok := props["directivity"]; ok {
		values, err := floatArray(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: source %d directivity: %v", ErrInvalidFeature, id, err)
		}
		src.Directivity = values
	}
	return src, nil
}

func (s *SceneService) buildingFromFeature(id int64, f *geojson.Feature) (*model.Building, error) {
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: building %d must be a Polygon, got %T", ErrInvalidFeature, id, f.Geometry)
	}

	props := f.Properties
	b := &model.Building{
		ID:       id,
		Name:     props.MustString("name", ""),
		Levels:   props.MustInt("levels", 0),
		Material: props.MustString("material", ""),
		Outline:  poly,
		Tags:     map[string]string{},
	}
	for key, value := range props {
		if key != s.heightField && !buildingProperties[key] {
			b.Tags[key] = fmt.Sprint(value)
		}
	}

	height, ok := props[s.heightField].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: building %d has no numeric %q", ErrInvalidFeature, id, s.heightField)
	}
	s.buildingFields[s.heightField] = true
	b.Height = height

	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: building %d: %v", ErrInvalidFeature, id, err)
	}
	return b, nil
}

func floatArray(v interface{}) ([]float64, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, not a number", i, item)
		}
		out[i] = f
	}
	return out, nil
}
