package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"

	"noisemap/internal/config"
	"noisemap/internal/model"

	"github.com/paulmach/orb"
	"gorm.io/gorm"
)

// ErrInvalidIdentifier is returned for table or column names that are not plain identifiers
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Provider serves a study area stored in PostgreSQL. Building heights are
// read from a configurable column and DEM samples from a configurable table.
type Provider struct {
	db          *gorm.DB
	heightField string
	demTable    string
}

// NewProvider creates a provider over db using the height field and DEM table of cfg
func NewProvider(db *gorm.DB, cfg config.Propagation) (*Provider, error) {
	if !identifier.MatchString(cfg.HeightField) {
		return nil, fmt.Errorf("height field %q: %w", cfg.HeightField, ErrInvalidIdentifier)
	}
	if cfg.DEMTable != "" && !identifier.MatchString(cfg.DEMTable) {
		return nil, fmt.Errorf("DEM table %q: %w", cfg.DEMTable, ErrInvalidIdentifier)
	}
	return &Provider{db: db, heightField: cfg.HeightField, demTable: cfg.DEMTable}, nil
}

// Validate checks that the height column and the DEM table exist
func (p *Provider) Validate(ctx context.Context, cfg config.Propagation) error {
	m := p.db.WithContext(ctx).Migrator()
	if !m.HasTable(&model.BuildingPG{}) {
		return fmt.Errorf("table %q does not exist", model.BuildingPG{}.TableName())
	}
	if !m.HasColumn(&model.BuildingPG{}, p.heightField) {
		return fmt.Errorf("column %q does not exist in %q", p.heightField, model.BuildingPG{}.TableName())
	}
	if p.demTable != "" && !m.HasTable(p.demTable) {
		return fmt.Errorf("DEM table %q does not exist", p.demTable)
	}
	return nil
}

// intersecting restricts a query on min/max bbox columns to rows intersecting region
func intersecting(db *gorm.DB, region orb.Bound) *gorm.DB {
	return db.Where("max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?",
		region.Min[0], region.Max[0], region.Min[1], region.Max[1])
}

// inside restricts a query on x/y columns to points inside region
func inside(db *gorm.DB, region orb.Bound) *gorm.DB {
	return db.Where("x BETWEEN ? AND ? AND y BETWEEN ? AND ?",
		region.Min[0], region.Max[0], region.Min[1], region.Max[1])
}

// Extent returns the bounds of all receivers
func (p *Provider) Extent(ctx context.Context) (orb.Bound, error) {
	var row struct {
		Count int64
		MinX  float64
		MinY  float64
		MaxX  float64
		MaxY  float64
	}
	err := p.db.WithContext(ctx).Model(&model.ReceiverPG{}).
		Select("COUNT(*) AS count, MIN(x) AS min_x, MIN(y) AS min_y, MAX(x) AS max_x, MAX(y) AS max_y").
		Scan(&row).Error
	if err != nil {
		return orb.Bound{}, fmt.Errorf("failed to query receiver extent: %w", err)
	}
	if row.Count == 0 {
		return orb.Bound{}, errors.New("receivers table is empty")
	}
	return orb.Bound{Min: orb.Point{row.MinX, row.MinY}, Max: orb.Point{row.MaxX, row.MaxY}}, nil
}

// Sources returns the sources whose bounds intersect region
func (p *Provider) Sources(ctx context.Context, region orb.Bound) ([]*model.Source, error) {
	var rows []*model.SourcePG
	if err := intersecting(p.db.WithContext(ctx), region).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	out := make([]*model.Source, 0, len(rows))
	for _, row := range rows {
		src, err := model.SourceFromPG(row)
		if err != nil {
			log.Printf("WARN: skipping source: %v", err)
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

// Receivers returns the receivers located in region
func (p *Provider) Receivers(ctx context.Context, region orb.Bound) ([]*model.Receiver, error) {
	var rows []*model.ReceiverPG
	if err := inside(p.db.WithContext(ctx), region).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load receivers: %w", err)
	}
	out := make([]*model.Receiver, len(rows))
	for i, row := range rows {
		out[i] = model.ReceiverFromPG(row)
	}
	return out, nil
}

// buildingQuery selects buildings with the configured height column aliased to height
func (p *Provider) buildingQuery(ctx context.Context, region orb.Bound) *gorm.DB {
	columns := fmt.Sprintf("id, name, geometry, min_x, min_y, max_x, max_y, material, %s AS height", p.heightField)
	return intersecting(p.db.WithContext(ctx).Model(&model.BuildingPG{}).Select(columns), region).Order("id")
}

// Buildings returns the buildings whose footprint bounds intersect region
func (p *Provider) Buildings(ctx context.Context, region orb.Bound) ([]*model.Building, error) {
	var rows []*model.BuildingPG
	if err := p.buildingQuery(ctx, region).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load buildings: %w", err)
	}
	out := make([]*model.Building, 0, len(rows))
	for _, row := range rows {
		b, err := model.BuildingFromPG(row)
		if err != nil {
			log.Printf("WARN: skipping building: %v", err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Terrain returns the DEM samples located in region, or nothing when no DEM table is configured
func (p *Provider) Terrain(ctx context.Context, region orb.Bound) ([]model.Point3D, error) {
	if p.demTable == "" {
		return nil, nil
	}
	var rows []model.DEMSamplePG
	if err := inside(p.db.WithContext(ctx).Table(p.demTable), region).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load DEM samples from %q: %w", p.demTable, err)
	}
	out := make([]model.Point3D, len(rows))
	for i, row := range rows {
		out[i] = model.Point3D{X: row.X, Y: row.Y, Z: row.Z}
	}
	return out, nil
}
