package model

import (
	"errors"
	"testing"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func square(x0, y0, size float64) orb.Polygon {
	return orb.Polygon{{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}
}

func TestSource_DiscretizePoint(t *testing.T) {
	s := &Source{ID: 1, Geometry: orb.Point{3, 4}, Z: 2, Power: []float64{10, 20}}
	emitters, err := s.Discretize(5)
	require.NoError(t, err)
	require.Len(t, emitters, 1)
	assert.Equal(t, Point3D{X: 3, Y: 4, Z: 2}, emitters[0].Position)
	assert.Equal(t, []float64{10, 20}, emitters[0].Power)
}

func TestSource_DiscretizeLineKeepsTotalPower(t *testing.T) {
	s := &Source{
		ID:       2,
		Geometry: orb.LineString{{0, 0}, {12, 0}, {12, 3}},
		Z:        0.5,
		Power:    []float64{1, 2},
	}
	emitters, err := s.Discretize(5)
	require.NoError(t, err)
	// 12 m cut in 3 pieces, 3 m in 1 piece
	require.Len(t, emitters, 4)
	assert.InDelta(t, 2, emitters[0].Position.X, 1e-9)
	assert.InDelta(t, 1.5, emitters[3].Position.Y, 1e-9)

	total := make([]float64, 2)
	for _, e := range emitters {
		floats.Add(total, e.Power)
		assert.Equal(t, int64(2), e.SourceID)
	}
	assert.InDelta(t, 15, total[0], 1e-9)
	assert.InDelta(t, 30, total[1], 1e-9)
}

func TestSource_DiscretizeErrors(t *testing.T) {
	s := &Source{ID: 3, Geometry: orb.LineString{{0, 0}, {1, 0}}}
	_, err := s.Discretize(0)
	assert.Error(t, err)

	s = &Source{ID: 4, Geometry: square(0, 0, 1)}
	_, err = s.Discretize(1)
	assert.Error(t, err)
}

func TestBuilding_Validate(t *testing.T) {
	b := &Building{ID: 1, Height: 10, Outline: square(0, 0, 10)}
	b.Normalize()
	require.NoError(t, b.Validate())
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, b.BoundingBox)

	flat := &Building{ID: 2, Height: 10, Outline: orb.Polygon{{{0, 0}, {1, 1}, {2, 2}, {0, 0}}}}
	assert.True(t, errors.Is(flat.Validate(), ErrDegenerateGeometry))

	dup := &Building{ID: 3, Height: 10, Outline: orb.Polygon{{{0, 0}, {0, 0}, {1, 1}, {0, 0}}}}
	assert.True(t, errors.Is(dup.Validate(), ErrDegenerateGeometry))

	low := &Building{ID: 4, Height: 0, Outline: square(0, 0, 1)}
	assert.True(t, errors.Is(low.Validate(), ErrDegenerateGeometry))
}

func TestBuilding_NormalizeOrientsCounterClockwise(t *testing.T) {
	b := &Building{ID: 1, Height: 3, Outline: orb.Polygon{{{0, 0}, {0, 5}, {5, 5}, {5, 0}}}}
	b.Normalize()
	ring := b.Ring()
	assert.True(t, ring.Closed())
	assert.Equal(t, orb.CCW, ring.Orientation())

	b.Base = 12
	assert.Equal(t, 15.0, b.RoofAltitude())
}

func TestRectFromBound_ZeroWidth(t *testing.T) {
	rect := RectFromBound(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 4}})
	assert.Greater(t, rect.LengthsCoord(0), 0.0)
	assert.InDelta(t, 3, rect.LengthsCoord(1), 1e-5)
}

func TestRectFromBound_Touching(t *testing.T) {
	tree := rtreego.NewTree(2, 25, 50)
	tree.Insert(&BuildingSpatial{Building: &Building{BoundingBox: orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}}})

	hits := tree.SearchIntersect(RectFromBound(orb.Point{20, 15}.Bound()))
	assert.Len(t, hits, 1)
	hits = tree.SearchIntersect(RectFromBound(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}))
	assert.Len(t, hits, 1)
}

func TestSourcePGRoundTrip(t *testing.T) {
	s := &Source{ID: 9, Geometry: orb.LineString{{0, 0}, {10, 5}}, Z: 1, Power: []float64{1}}
	pg, err := s.ToPG()
	require.NoError(t, err)
	assert.Equal(t, 10.0, pg.MaxX)

	back, err := SourceFromPG(pg)
	require.NoError(t, err)
	assert.Equal(t, s.Geometry, back.Geometry)

	_, err = SourceFromPG(&SourcePG{ID: 1, Geometry: "nope"})
	assert.Error(t, err)
}

func TestBuildingFromPG_RejectsNonPolygon(t *testing.T) {
	_, err := BuildingFromPG(&BuildingPG{ID: 1, Geometry: `{"type":"Point","coordinates":[1,2]}`})
	assert.Error(t, err)

	b, err := BuildingFromPG(&BuildingPG{
		ID:       2,
		Geometry: `{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]}`,
		Height:   6,
	})
	require.NoError(t, err)
	assert.NoError(t, b.Validate())
}
