package osm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"noisemap/internal/propagation"
)

// MaterialMapping maps facade materials to the OSM building types built with them
type MaterialMapping struct {
	MaterialMappingConfig map[string][]string `json:"material_mapping_config"`
}

// DefaultMaterialMapping covers the most common OSM building values
func DefaultMaterialMapping() *MaterialMapping {
	return &MaterialMapping{MaterialMappingConfig: map[string][]string{
		"concrete": {"apartments", "commercial", "office", "retail", "hospital", "school", "university", "parking"},
		"brick":    {"house", "residential", "detached", "semidetached_house", "terrace", "church"},
		"metal":    {"industrial", "warehouse", "hangar", "shed", "garage", "garages"},
		"glass":    {"greenhouse"},
	}}
}

// LoadMaterialMapping reads a mapping from a JSON file
func LoadMaterialMapping(path string) (*MaterialMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read material mapping: %w", err)
	}

	var mapping MaterialMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse material mapping: %w", err)
	}
	return &mapping, nil
}

// Material maps an OSM building type to a facade material.
// Returns the default material if no mapping is found.
func (m *MaterialMapping) Material(osmType string) string {
	if m == nil {
		return propagation.DefaultMaterial
	}

	// Normalize input category (trim whitespace and convert to lowercase)
	normalized := strings.TrimSpace(strings.ToLower(osmType))

	for material, types := range m.MaterialMappingConfig {
		for _, t := range types {
			if strings.ToLower(t) == normalized {
				return material
			}
		}
	}
	return propagation.DefaultMaterial
}
