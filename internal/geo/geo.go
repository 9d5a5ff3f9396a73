// Package geo provides the vector math the directors run on and the
// conversion of a track's geographic reference point into web-mercator for
// storage.
package geo

import (
	"math"

	"github.com/apexsim/extension/pkg/core"
)

// Dot returns the dot product of two vectors.
func Dot(a, b core.Position3D) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// LengthSquared returns the squared length of v.
func LengthSquared(v core.Position3D) float64 {
	return Dot(v, v)
}

// Length returns the length of v.
func Length(v core.Position3D) float64 {
	return math.Sqrt(LengthSquared(v))
}

// DistanceSquared returns the squared distance between a and b.
func DistanceSquared(a, b core.Position3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

// Sub returns a - b.
func Sub(a, b core.Position3D) core.Position3D {
	return core.Position3D{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Add returns a + b.
func Add(a, b core.Position3D) core.Position3D {
	return core.Position3D{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// Scale returns v scaled by f.
func Scale(v core.Position3D, f float64) core.Position3D {
	return core.Position3D{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Normalize returns v with unit length. The zero vector is returned
// unchanged.
func Normalize(v core.Position3D) core.Position3D {
	l := Length(v)
	if l == 0 {
		return v
	}
	return Scale(v, 1/l)
}

// Offset returns pos displaced along the direction of velocity by meters.
// A stationary velocity yields pos unchanged, so spawn biasing degrades
// gracefully for parked cars.
func Offset(pos, velocity core.Position3D, meters float64) core.Position3D {
	if LengthSquared(velocity) == 0 {
		return pos
	}
	return Add(pos, Scale(Normalize(velocity), meters))
}
