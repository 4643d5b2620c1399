package model

import (
	"errors"
	"fmt"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrDegenerateGeometry is returned for footprints that cannot act as obstacles
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// minRectSide keeps zero-width bounds indexable and touching bounds intersecting
const minRectSide = 1e-6

// Building is an obstacle with a flat roof
type Building struct {
	ID          int64             // Source identifier (OSM ID or table key)
	Name        string            // Name of the building (if available)
	Levels      int               // Number of levels/floors
	Height      float64           // Height above Base in meters
	Base        float64           // Ground altitude at the footprint, set when the scene is built
	Material    string            // Facade material, key of the absorption table
	Outline     orb.Polygon       // Footprint, only the outer ring is used
	BoundingBox orb.Bound         // Bounding box of the footprint
	Tags        map[string]string // Extra attributes from the data source
}

// RoofAltitude returns the absolute altitude of the roof
func (b *Building) RoofAltitude() float64 {
	return b.Base + b.Height
}

// Ring returns the outer ring of the footprint
func (b *Building) Ring() orb.Ring {
	if len(b.Outline) == 0 {
		return nil
	}
	return b.Outline[0]
}

// Validate checks the footprint and height
func (b *Building) Validate() error {
	ring := b.Ring()
	if len(ring) < 3 {
		return fmt.Errorf("building %d has %d vertices: %w", b.ID, len(ring), ErrDegenerateGeometry)
	}
	distinct := map[orb.Point]struct{}{}
	for _, p := range ring {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("building %d has %d distinct vertices: %w", b.ID, len(distinct), ErrDegenerateGeometry)
	}
	if planar.Area(ring) == 0 {
		return fmt.Errorf("building %d has zero area: %w", b.ID, ErrDegenerateGeometry)
	}
	if b.Height <= 0 {
		return fmt.Errorf("building %d has height %.2f: %w", b.ID, b.Height, ErrDegenerateGeometry)
	}
	return nil
}

// Normalize closes the outer ring, orients it counter-clockwise and refreshes the bounding box
func (b *Building) Normalize() {
	if len(b.Outline) == 0 {
		return
	}
	ring := b.Outline[0]
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	b.Outline = orb.Polygon{ring}
	b.BoundingBox = ring.Bound()
}

// BuildingSpatial represents a building with its spatial information for R-tree indexing
type BuildingSpatial struct {
	Building *Building // Reference to the building
}

// Bounds implements the rtreego.Spatial interface
func (b *BuildingSpatial) Bounds() rtreego.Rect {
	return RectFromBound(b.Building.BoundingBox)
}

// RectFromBound converts an orb.Bound to an rtreego.Rect grown by minRectSide
// on every side, so that points and bounds touching each other still intersect
func RectFromBound(bound orb.Bound) rtreego.Rect {
	minX, minY := bound.Min[0]-minRectSide, bound.Min[1]-minRectSide
	w := bound.Max[0] - bound.Min[0] + 2*minRectSide
	h := bound.Max[1] - bound.Min[1] + 2*minRectSide

	rect, _ := rtreego.NewRect(rtreego.Point{minX, minY}, []float64{w, h})
	return rect
}
