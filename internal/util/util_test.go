package util

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	// one degree of latitude is about 111.2 km
	assert.InDelta(t, 111195, HaversineDistance(45, 5, 46, 5), 10)
	assert.Zero(t, HaversineDistance(45, 5, 45, 5))
}

func TestProjection(t *testing.T) {
	p := NewProjection(orb.Point{2.35, 48.85})
	assert.Equal(t, orb.Point{0, 0}, p.Project(orb.Point{2.35, 48.85}))

	east := p.Project(orb.Point{2.36, 48.85})
	assert.InDelta(t, HaversineDistance(48.85, 2.35, 48.85, 2.36), east[0], 1)
	assert.InDelta(t, 0, east[1], 1e-9)

	north := p.Project(orb.Point{2.35, 48.86})
	assert.InDelta(t, 1112, north[1], 2)

	back := p.Unproject(p.Project(orb.Point{2.3612, 48.8577}))
	assert.InDelta(t, 2.3612, back[0], 1e-9)
	assert.InDelta(t, 48.8577, back[1], 1e-9)

	ring := p.ProjectRing(orb.Ring{{2.35, 48.85}, {2.36, 48.85}})
	assert.Len(t, ring, 2)
	assert.Equal(t, east, ring[1])
}

func TestShortUUID(t *testing.T) {
	a, b := ShortUUID(), ShortUUID()
	assert.Len(t, a, 22)
	assert.NotEqual(t, a, b)
}
