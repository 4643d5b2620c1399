package scene

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"noisemap/internal/config"
	"noisemap/internal/model"
	"noisemap/internal/service/storage"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// ErrEmptyScene is returned when the extent of a scene without receivers is requested
var ErrEmptyScene = errors.New("scene has no receivers")

// spatialItem indexes one scene object by its bounds
type spatialItem struct {
	id    int64
	bound orb.Bound
}

// Bounds implements the rtreego.Spatial interface
func (s *spatialItem) Bounds() rtreego.Rect {
	return model.RectFromBound(s.bound)
}

// SceneService holds a whole study area in memory and serves it by region
type SceneService struct {
	heightField string

	sources   storage.Storage[int64, *model.Source]
	receivers storage.Storage[int64, *model.Receiver]
	buildings storage.Storage[int64, *model.Building]
	terrain   []model.Point3D

	indexMutex    sync.RWMutex
	sourceIndex   *rtreego.Rtree
	receiverIndex *rtreego.Rtree
	buildingIndex *rtreego.Rtree
	terrainIndex  *rtreego.Rtree

	// property names seen on building features
	buildingFields map[string]bool
}

// NewSceneService creates an empty scene reading building heights from heightField
func NewSceneService(heightField string) *SceneService {
	return &SceneService{
		heightField:    heightField,
		sources:        storage.NewMemoryStorage[int64, *model.Source](),
		receivers:      storage.NewShardedMemoryStorage[int64, *model.Receiver](8, nil),
		buildings:      storage.NewMemoryStorage[int64, *model.Building](),
		sourceIndex:    rtreego.NewTree(2, 25, 50),
		receiverIndex:  rtreego.NewTree(2, 25, 50),
		buildingIndex:  rtreego.NewTree(2, 25, 50),
		terrainIndex:   rtreego.NewTree(2, 25, 50),
		buildingFields: map[string]bool{},
	}
}

// AddSource stores a source, replacing any source with the same ID
func (s *SceneService) AddSource(src *model.Source) {
	s.sources.Set(src.ID, src)
}

// AddReceiver stores a receiver, replacing any receiver with the same ID
func (s *SceneService) AddReceiver(r *model.Receiver) {
	s.receivers.Set(r.ID, r)
}

// AddBuilding stores a building, replacing any building with the same ID
func (s *SceneService) AddBuilding(b *model.Building) {
	s.buildings.Set(b.ID, b)
}

// AddTerrain appends DEM samples
func (s *SceneService) AddTerrain(samples ...model.Point3D) {
	s.indexMutex.Lock()
	s.terrain = append(s.terrain, samples...)
	s.indexMutex.Unlock()
}

// Counts returns the number of sources, receivers, buildings and DEM samples
func (s *SceneService) Counts() (sources, receivers, buildings, terrain int) {
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()
	return s.sources.Count(), s.receivers.Count(), s.buildings.Count(), len(s.terrain)
}

// RebuildIndex rebuilds the spatial indexes after objects were added
func (s *SceneService) RebuildIndex() {
	start := time.Now()
	s.indexMutex.Lock()
	defer s.indexMutex.Unlock()

	s.sourceIndex = rtreego.NewTree(2, 25, 50)
	s.sources.ForEach(func(id int64, src *model.Source) bool {
		s.sourceIndex.Insert(&spatialItem{id: id, bound: src.Bound()})
		return true
	})

	s.receiverIndex = rtreego.NewTree(2, 25, 50)
	s.receivers.ForEach(func(id int64, r *model.Receiver) bool {
		s.receiverIndex.Insert(&spatialItem{id: id, bound: r.Position.XY().Bound()})
		return true
	})

	s.buildingIndex = rtreego.NewTree(2, 25, 50)
	s.buildings.ForEach(func(id int64, b *model.Building) bool {
		s.buildingIndex.Insert(&spatialItem{id: id, bound: b.Outline.Bound()})
		return true
	})

	s.terrainIndex = rtreego.NewTree(2, 25, 50)
	for i, p := range s.terrain {
		s.terrainIndex.Insert(&spatialItem{id: int64(i), bound: p.XY().Bound()})
	}

	log.Printf("Scene index built in %v: %d sources, %d receivers, %d buildings, %d DEM samples",
		time.Since(start), s.sources.Count(), s.receivers.Count(), s.buildings.Count(), len(s.terrain))
}

// search returns the sorted IDs of the indexed objects intersecting region
func search(index *rtreego.Rtree, region orb.Bound) []int64 {
	hits := index.SearchIntersect(model.RectFromBound(region))
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		item := hit.(*spatialItem)
		if item.bound.Intersects(region) {
			ids = append(ids, item.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Extent returns the bounds of all receivers
func (s *SceneService) Extent(ctx context.Context) (orb.Bound, error) {
	var (
		bound orb.Bound
		found bool
	)
	s.receivers.ForEach(func(_ int64, r *model.Receiver) bool {
		if !found {
			bound = r.Position.XY().Bound()
			found = true
		} else {
			bound = bound.Extend(r.Position.XY())
		}
		return true
	})
	if !found {
		return orb.Bound{}, ErrEmptyScene
	}
	return bound, nil
}

// Sources returns the sources whose bounds intersect region
func (s *SceneService) Sources(ctx context.Context, region orb.Bound) ([]*model.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	var out []*model.Source
	for _, id := range search(s.sourceIndex, region) {
		if src, ok := s.sources.Get(id); ok {
			out = append(out, src)
		}
	}
	return out, nil
}

// Receivers returns the receivers located in region
func (s *SceneService) Receivers(ctx context.Context, region orb.Bound) ([]*model.Receiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	var out []*model.Receiver
	for _, id := range search(s.receiverIndex, region) {
		if r, ok := s.receivers.Get(id); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Buildings returns copies of the buildings whose footprint bounds intersect region
func (s *SceneService) Buildings(ctx context.Context, region orb.Bound) ([]*model.Building, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	var out []*model.Building
	for _, id := range search(s.buildingIndex, region) {
		if b, ok := s.buildings.Get(id); ok {
			cp := *b
			cp.Outline = b.Outline.Clone()
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Terrain returns the DEM samples located in region
func (s *SceneService) Terrain(ctx context.Context, region orb.Bound) ([]model.Point3D, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	ids := search(s.terrainIndex, region)
	out := make([]model.Point3D, len(ids))
	for i, id := range ids {
		out[i] = s.terrain[id]
	}
	return out, nil
}

// Validate checks that the configured height field is the one buildings were
// loaded with and that it was present on the building features
func (s *SceneService) Validate(ctx context.Context, cfg config.Propagation) error {
	if cfg.HeightField != s.heightField {
		return fmt.Errorf("height field %q does not match the loaded scene (%q)", cfg.HeightField, s.heightField)
	}
	if s.buildings.Count() > 0 && !s.buildingFields[s.heightField] {
		return fmt.Errorf("no building carries the height field %q", s.heightField)
	}
	return nil
}
