package noisemap

import (
	"context"

	"noisemap/internal/config"
	"noisemap/internal/model"

	"github.com/paulmach/orb"
)

// DataSource supplies the geometry of a study area. Every query returns the
// objects whose bounds intersect the given region.
type DataSource interface {
	Extent(ctx context.Context) (orb.Bound, error)
	Sources(ctx context.Context, region orb.Bound) ([]*model.Source, error)
	Receivers(ctx context.Context, region orb.Bound) ([]*model.Receiver, error)
	Buildings(ctx context.Context, region orb.Bound) ([]*model.Building, error)
	Terrain(ctx context.Context, region orb.Bound) ([]model.Point3D, error)
}

// Validator is implemented by data sources able to check that the configured
// height field and DEM table exist
type Validator interface {
	Validate(ctx context.Context, cfg config.Propagation) error
}

// ProgressVisitor receives coarse progress and may ask for cancellation
type ProgressVisitor interface {
	Progress(done, total int64)
	IsCancelled() bool
}

// NoProgress ignores progress and never cancels
type NoProgress struct{}

func (NoProgress) Progress(done, total int64) {}

func (NoProgress) IsCancelled() bool { return false }
