package model

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SourcePG model for PostgreSQL storage
type SourcePG struct {
	ID          int64     `gorm:"primaryKey"`
	Geometry    string    `gorm:"type:text;not null"` // GeoJSON geometry
	MinX        float64   `gorm:"index"`
	MinY        float64   `gorm:"index"`
	MaxX        float64   `gorm:"index"`
	MaxY        float64   `gorm:"index"`
	Z           float64   `gorm:"not null"`
	Power       []float64 `gorm:"type:jsonb;serializer:json"`
	Directivity []float64 `gorm:"type:jsonb;serializer:json"`
}

// TableName overrides the table name
func (SourcePG) TableName() string {
	return "sources"
}

// ReceiverPG model for PostgreSQL storage
type ReceiverPG struct {
	ID int64   `gorm:"primaryKey"`
	X  float64 `gorm:"index"`
	Y  float64 `gorm:"index"`
	Z  float64 `gorm:"not null"`
}

// TableName overrides the table name
func (ReceiverPG) TableName() string {
	return "receivers"
}

// BuildingPG model for PostgreSQL storage. Height is read from a
// configurable column and aliased on load.
type BuildingPG struct {
	ID       int64   `gorm:"primaryKey"`
	Name     string  `gorm:"size:255"`
	Geometry string  `gorm:"type:text;not null"`
	MinX     float64 `gorm:"index"`
	MinY     float64 `gorm:"index"`
	MaxX     float64 `gorm:"index"`
	MaxY     float64 `gorm:"index"`
	Height   float64 `gorm:"column:height"`
	Material string  `gorm:"size:50"`
}

// TableName overrides the table name
func (BuildingPG) TableName() string {
	return "buildings"
}

// DEMSamplePG is one elevation sample of a DEM table
type DEMSamplePG struct {
	ID int64   `gorm:"primaryKey"`
	X  float64 `gorm:"index"`
	Y  float64 `gorm:"index"`
	Z  float64 `gorm:"not null"`
}

// ReceiverLevelPG stores the finalized level of a receiver for one run
type ReceiverLevelPG struct {
	RunID      string    `gorm:"primaryKey;size:64"`
	ReceiverID int64     `gorm:"primaryKey"`
	Levels     []float64 `gorm:"type:jsonb;serializer:json"`
	Global     float64   `gorm:"not null"`
	Complete   bool      `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name
func (ReceiverLevelPG) TableName() string {
	return "receiver_levels"
}

// SourceFromPG creates a Source from SourcePG
func SourceFromPG(pg *SourcePG) (*Source, error) {
	g, err := parseGeometry(pg.Geometry)
	if err != nil {
		return nil, fmt.Errorf("source %d: %w", pg.ID, err)
	}
	return &Source{
		ID:          pg.ID,
		Geometry:    g,
		Z:           pg.Z,
		Power:       pg.Power,
		Directivity: pg.Directivity,
	}, nil
}

// ToPG converts a Source to its storage model
func (s *Source) ToPG() (*SourcePG, error) {
	data, err := geojson.NewGeometry(s.Geometry).MarshalJSON()
	if err != nil {
		return nil, err
	}
	b := s.Bound()
	return &SourcePG{
		ID:          s.ID,
		Geometry:    string(data),
		MinX:        b.Min[0],
		MinY:        b.Min[1],
		MaxX:        b.Max[0],
		MaxY:        b.Max[1],
		Z:           s.Z,
		Power:       s.Power,
		Directivity: s.Directivity,
	}, nil
}

// ReceiverFromPG creates a Receiver from ReceiverPG
func ReceiverFromPG(pg *ReceiverPG) *Receiver {
	return &Receiver{ID: pg.ID, Position: Point3D{X: pg.X, Y: pg.Y, Z: pg.Z}}
}

// BuildingFromPG creates a Building from BuildingPG
func BuildingFromPG(pg *BuildingPG) (*Building, error) {
	g, err := parseGeometry(pg.Geometry)
	if err != nil {
		return nil, fmt.Errorf("building %d: %w", pg.ID, err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("building %d: expected Polygon, got %s", pg.ID, g.GeoJSONType())
	}
	b := &Building{
		ID:       pg.ID,
		Name:     pg.Name,
		Height:   pg.Height,
		Material: pg.Material,
		Outline:  poly,
	}
	b.Normalize()
	return b, nil
}

// ToPG converts a Building to its storage model
func (b *Building) ToPG() (*BuildingPG, error) {
	data, err := geojson.NewGeometry(b.Outline).MarshalJSON()
	if err != nil {
		return nil, err
	}
	return &BuildingPG{
		ID:       b.ID,
		Name:     b.Name,
		Geometry: string(data),
		MinX:     b.BoundingBox.Min[0],
		MinY:     b.BoundingBox.Min[1],
		MaxX:     b.BoundingBox.Max[0],
		MaxY:     b.BoundingBox.Max[1],
		Height:   b.Height,
		Material: b.Material,
	}, nil
}

func parseGeometry(text string) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	return g.Geometry(), nil
}
