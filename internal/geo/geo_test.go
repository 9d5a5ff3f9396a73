package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/extension/pkg/core"
)

func TestVectorMath(t *testing.T) {
	a := core.Position3D{X: 1, Y: 2, Z: 3}
	b := core.Position3D{X: 4, Y: 5, Z: 6}

	assert.Equal(t, 32.0, Dot(a, b))
	assert.Equal(t, 14.0, LengthSquared(a))
	assert.InDelta(t, math.Sqrt(14), Length(a), 1e-12)
	assert.Equal(t, 27.0, DistanceSquared(a, b))
	assert.Equal(t, core.Position3D{X: 3, Y: 3, Z: 3}, Sub(b, a))
	assert.Equal(t, core.Position3D{X: 5, Y: 7, Z: 9}, Add(a, b))
	assert.Equal(t, core.Position3D{X: 2, Y: 4, Z: 6}, Scale(a, 2))
}

func TestNormalize(t *testing.T) {
	v := Normalize(core.Position3D{X: 3, Y: 0, Z: 4})
	assert.InDelta(t, 0.6, v.X, 1e-12)
	assert.InDelta(t, 0.8, v.Z, 1e-12)
	assert.InDelta(t, 1.0, Length(v), 1e-12)

	// zero vector stays zero
	zero := Normalize(core.Position3D{})
	assert.Equal(t, core.Position3D{}, zero)
}

func TestOffset(t *testing.T) {
	pos := core.Position3D{X: 10, Y: 0, Z: 10}

	// stationary cars get no offset
	assert.Equal(t, pos, Offset(pos, core.Position3D{}, 100))

	// moving cars are offset along travel
	moved := Offset(pos, core.Position3D{X: 20, Y: 0, Z: 0}, 100)
	assert.InDelta(t, 110.0, moved.X, 1e-9)
	assert.InDelta(t, 10.0, moved.Z, 1e-9)
}

func TestTrackLocation3857(t *testing.T) {
	point, err := TrackLocation3857(9.28, 45.62) // Monza
	require.NoError(t, err)

	coords, ok := point.Coordinates()
	require.True(t, ok)
	// web mercator easting of ~9.28 deg is roughly 1033 km
	assert.InDelta(t, 1.033e6, coords.XY.X, 5e3)
	assert.Greater(t, coords.XY.Y, 5.0e6)
}

func TestTrackLocation3857_Invalid(t *testing.T) {
	_, err := TrackLocation3857(200, 0)
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = TrackLocation3857(0, 89)
	assert.ErrorIs(t, err, ErrInvalidLocation)
}
