package terrain

import (
	"errors"
	"math"
	"testing"

	"noisemap/internal/model"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ridge builds a 100x100 m grid at 10 m resolution with a ridge of the given
// height along x = 50
func ridge(t *testing.T, height float64) *Grid {
	t.Helper()
	var samples []model.Point3D
	for x := 0.0; x <= 100; x += 10 {
		for y := 0.0; y <= 100; y += 10 {
			z := 0.0
			if x == 50 {
				z = height
			}
			samples = append(samples, model.Point3D{X: x, Y: y, Z: z})
		}
	}
	g, err := FromSamples(samples, 10)
	require.NoError(t, err)
	return g
}

func TestFromSamples(t *testing.T) {
	g := ridge(t, 20)
	assert.Equal(t, 11, g.Cols)
	assert.Equal(t, 11, g.Rows)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, g.Bound())

	_, err := FromSamples(nil, 10)
	assert.True(t, errors.Is(err, ErrNoSamples))
}

func TestFromSamples_InfersResolution(t *testing.T) {
	samples := []model.Point3D{{X: 0, Y: 0, Z: 1}, {X: 5, Y: 0, Z: 2}, {X: 0, Y: 5, Z: 3}, {X: 5, Y: 5, Z: 4}}
	g, err := FromSamples(samples, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, g.Resolution)

	z, ok := g.Elevation(2.5, 2.5)
	require.True(t, ok)
	assert.InDelta(t, 2.5, z, 1e-9)
}

func TestElevation_Bilinear(t *testing.T) {
	g := ridge(t, 20)
	z, ok := g.Elevation(50, 33)
	require.True(t, ok)
	assert.InDelta(t, 20, z, 1e-9)

	z, ok = g.Elevation(45, 50)
	require.True(t, ok)
	assert.InDelta(t, 10, z, 1e-9)

	// clamped outside the grid
	z, ok = g.Elevation(-30, 50)
	require.True(t, ok)
	assert.InDelta(t, 0, z, 1e-9)
}

func TestElevation_MissingNodes(t *testing.T) {
	nan := math.NaN()
	g, err := NewGrid(orb.Point{0, 0}, 1, 2, 2, []float64{4, nan, nan, nan})
	require.NoError(t, err)

	z, ok := g.Elevation(0.5, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 4, z, 1e-9)

	g, err = NewGrid(orb.Point{0, 0}, 1, 2, 2, []float64{nan, nan, nan, nan})
	require.NoError(t, err)
	_, ok = g.Elevation(0.5, 0.5)
	assert.False(t, ok)
}

func TestNilGridIsFlat(t *testing.T) {
	var g *Grid
	_, ok := g.Elevation(1, 1)
	assert.False(t, ok)
	assert.Equal(t, 0.0, g.Ground(orb.Point{3, 3}))
	assert.Nil(t, g.Profile(model.Point3D{}, model.Point3D{X: 1}))
	assert.False(t, g.Blocks(model.Point3D{Z: 1}, model.Point3D{X: 10, Z: 1}))
}

func TestBlocks_Ridge(t *testing.T) {
	g := ridge(t, 20)
	a := model.Point3D{X: 10, Y: 50, Z: 2}
	b := model.Point3D{X: 90, Y: 50, Z: 2}
	assert.True(t, g.Blocks(a, b))

	high := model.Point3D{X: 90, Y: 50, Z: 60}
	assert.False(t, g.Blocks(a, high))

	// diagonal crossing several strips
	assert.True(t, g.Blocks(model.Point3D{X: 10, Y: 10, Z: 2}, model.Point3D{X: 90, Y: 90, Z: 2}))
}

func TestProfile_PrunesLowStrips(t *testing.T) {
	g := ridge(t, 20)
	// both endpoints above every strip: nothing can block, nothing sampled
	p := g.Profile(model.Point3D{X: 10, Y: 10, Z: 30}, model.Point3D{X: 90, Y: 90, Z: 40})
	assert.Empty(t, p)

	p = g.Profile(model.Point3D{X: 10, Y: 50, Z: 1}, model.Point3D{X: 90, Y: 50, Z: 1})
	require.NotEmpty(t, p)
	for i := 1; i < len(p); i++ {
		assert.GreaterOrEqual(t, p[i].Dist, p[i-1].Dist)
	}
	peak := 0.0
	for _, s := range p {
		peak = math.Max(peak, s.Z)
	}
	assert.InDelta(t, 20, peak, 1e-6)
}

func TestNewGrid_Validation(t *testing.T) {
	_, err := NewGrid(orb.Point{}, 0, 1, 1, []float64{0})
	assert.Error(t, err)
	_, err = NewGrid(orb.Point{}, 1, 2, 2, []float64{0})
	assert.Error(t, err)
}

// hill is a 200x200 m square at altitude 0 with a 20 m peak in the middle
func hill() []model.Point3D {
	return []model.Point3D{
		{X: 0, Y: 0, Z: 0}, {X: 200, Y: 0, Z: 0},
		{X: 0, Y: 200, Z: 0}, {X: 200, Y: 200, Z: 0},
		{X: 100, Y: 100, Z: 20},
	}
}

func TestFromSamples_InterpolatesBetweenSamples(t *testing.T) {
	samples := append(hill(), model.Point3D{X: 0.5, Y: 0, Z: 0})

	g, err := FromSamples(samples, 10)
	require.NoError(t, err)
	z, ok := g.Elevation(100, 100)
	require.True(t, ok)
	assert.InDelta(t, 20, z, 1e-9)

	for _, p := range []orb.Point{{100, 50}, {60, 60}, {150, 120}} {
		z, ok := g.Elevation(p[0], p[1])
		require.True(t, ok, "%v", p)
		assert.Greater(t, z, 5.0, "%v", p)
		assert.Less(t, z, 20.0, "%v", p)
	}
}

func TestFromSamples_IrregularInference(t *testing.T) {
	samples := append(hill(), model.Point3D{X: 0.5, Y: 0, Z: 0})

	g, err := FromSamples(samples, 0)
	require.NoError(t, err)
	assert.Greater(t, g.Resolution, 100.0)
	assert.LessOrEqual(t, g.Cols*g.Rows, 9)

	z, ok := g.Elevation(100, 50)
	require.True(t, ok)
	assert.Greater(t, z, 0.0)
}

func TestFromSamples_CloseSamplesStayBounded(t *testing.T) {
	samples := []model.Point3D{
		{X: 0, Y: 0, Z: 3}, {X: 0.01, Y: 0, Z: 3},
		{X: 1500, Y: 0, Z: 5}, {X: 0, Y: 1500, Z: 7}, {X: 1500, Y: 1500, Z: 9},
	}
	g, err := FromSamples(samples, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, g.Resolution, MinResolution)
	assert.LessOrEqual(t, g.Cols*g.Rows, MaxNodes)

	_, err = FromSamples(samples, 0.01)
	assert.True(t, errors.Is(err, ErrGridTooLarge))
}

func TestFromSamples_CoarsensDenseInference(t *testing.T) {
	if testing.Short() {
		t.Skip("interpolates a million nodes")
	}
	var samples []model.Point3D
	for x := 0.0; x < 100; x++ {
		samples = append(samples, model.Point3D{X: x, Y: 0, Z: 1})
	}
	samples = append(samples, model.Point3D{X: 1500, Y: 1500, Z: 1})

	g, err := FromSamples(samples, 0)
	require.NoError(t, err)
	assert.Greater(t, g.Resolution, MinResolution)
	assert.LessOrEqual(t, g.Cols*g.Rows, MaxNodes)

	z, ok := g.Elevation(700, 700)
	require.True(t, ok)
	assert.InDelta(t, 1, z, 1e-9)
}

func TestFromSamples_AveragesCoincidentSamples(t *testing.T) {
	g, err := FromSamples([]model.Point3D{{X: 0, Y: 0, Z: 2}, {X: 0, Y: 0, Z: 4}, {X: 10, Y: 0, Z: 0}}, 10)
	require.NoError(t, err)
	z, ok := g.Elevation(0, 0)
	require.True(t, ok)
	assert.InDelta(t, 3, z, 1e-9)
}
