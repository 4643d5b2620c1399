package export

import (
	"fmt"
	"os"

	"noisemap/internal/model"
	"noisemap/internal/noisemap"
	"noisemap/internal/propagation"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Levels returns one Point feature per receiver level
func Levels(levels []noisemap.Level) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range levels {
		f := geojson.NewFeature(l.Position.XY())
		f.ID = l.ReceiverID
		f.Properties["receiver_id"] = l.ReceiverID
		f.Properties["z"] = l.Position.Z
		f.Properties["global"] = l.Global
		f.Properties["levels"] = l.Levels
		if l.Inside {
			f.Properties["inside"] = true
		}
		fc.Append(f)
	}
	return fc
}

// Cells returns one Polygon feature per cell of the grid
func Cells(grid *noisemap.CellGrid) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range grid.Cells() {
		f := geojson.NewFeature(c.Bound.ToPolygon())
		f.ID = c.ID
		f.Properties["row"] = c.Row
		f.Properties["col"] = c.Col
		fc.Append(f)
	}
	return fc
}

// Paths returns one LineString feature per propagation path, in plan view
func Paths(paths []propagation.Path) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range paths {
		line := make(orb.LineString, len(p.Points))
		heights := make([]float64, len(p.Points))
		for i, pt := range p.Points {
			line[i] = pt.XY()
			heights[i] = pt.Z
		}
		f := geojson.NewFeature(line)
		f.Properties["source_id"] = p.SourceID
		f.Properties["receiver_id"] = p.ReceiverID
		f.Properties["kind"] = p.Kind.String()
		f.Properties["diffraction_order"] = p.DiffractionOrder
		f.Properties["reflection_order"] = p.ReflectionOrder
		f.Properties["length"] = p.Length
		f.Properties["z"] = heights
		fc.Append(f)
	}
	return fc
}

// WriteFile writes a feature collection to path
func WriteFile(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Buildings returns the footprints in the layout read back by the scene loader
func Buildings(buildings []*model.Building, heightField string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range buildings {
		f := geojson.NewFeature(b.Outline)
		f.Properties["layer"] = "building"
		f.Properties["id"] = b.ID
		f.Properties[heightField] = b.Height
		if b.Material != "" {
			f.Properties["material"] = b.Material
		}
		if b.Name != "" {
			f.Properties["name"] = b.Name
		}
		if b.Levels > 0 {
			f.Properties["levels"] = b.Levels
		}
		fc.Append(f)
	}
	return fc
}
