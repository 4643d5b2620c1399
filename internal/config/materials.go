package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

var (
	materialsCache     map[string][]float64
	materialsCachePath string
	materialsMutex     sync.Mutex
)

// LoadMaterials reads a JSON object mapping a facade material to its
// absorption per band. The file is read once per path.
func LoadMaterials(path string) (map[string][]float64, error) {
	materialsMutex.Lock()
	defer materialsMutex.Unlock()

	if materialsCache != nil && materialsCachePath == path {
		return copyMaterials(materialsCache), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read materials file: %w", err)
	}

	var materials map[string][]float64
	if err := json.Unmarshal(data, &materials); err != nil {
		return nil, fmt.Errorf("failed to parse materials file %s: %w", path, err)
	}

	materialsCache = materials
	materialsCachePath = path
	return copyMaterials(materials), nil
}

func copyMaterials(in map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for k, v := range in {
		out[k] = append([]float64(nil), v...)
	}
	return out
}
