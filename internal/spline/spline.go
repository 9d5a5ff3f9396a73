// Package spline holds the immutable directed graph of road points the AI
// traffic traverses, and the query surface the directors run against it.
package spline

import (
	"math"
	"math/rand"

	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/pkg/core"
)

// NoPoint marks the absence of a graph position.
const NoPoint int32 = -1

// lookupCellSize buckets points for nearest-point queries. One cell plus its
// eight neighbors must cover the largest configured
// maxPlayerDistanceToAiSpline.
const lookupCellSize = 64.0

// Point is one node of the AI spline. Points are immutable after load, so
// ids are stable and safe to hold across ticks.
type Point struct {
	ID         int32
	Position   core.Position3D
	Forward    core.Position3D // unit vector toward NextID; at a dead end, the previous segment's heading
	Length     float64         // meters to NextID
	NextID     int32
	PreviousID int32
	LaneIDs    []int32 // sibling lane points at the same longitudinal position, own id included
}

type cellKey struct {
	x, z int32
}

// Spline is the immutable road graph.
type Spline struct {
	points    []Point
	junctions map[int32][]int32 // fromID -> candidate next ids
	lookup    map[cellKey][]int32
	laneRuns  [][]int32 // set by the loader, one run of point ids per lane
}

// New builds a spline from fully-linked points and junction branches.
// The loader and tests both go through here.
func New(points []Point, junctions map[int32][]int32) *Spline {
	s := &Spline{
		points:    points,
		junctions: junctions,
		lookup:    make(map[cellKey][]int32, len(points)),
	}
	if s.junctions == nil {
		s.junctions = map[int32][]int32{}
	}
	for i := range points {
		k := keyFor(points[i].Position)
		s.lookup[k] = append(s.lookup[k], points[i].ID)
	}
	return s
}

func keyFor(pos core.Position3D) cellKey {
	return cellKey{
		x: int32(math.Floor(pos.X / lookupCellSize)),
		z: int32(math.Floor(pos.Z / lookupCellSize)),
	}
}

// Len returns the number of points in the graph.
func (s *Spline) Len() int {
	return len(s.points)
}

// Point returns the point with the given id.
func (s *Spline) Point(id int32) Point {
	return s.points[id]
}

// Has reports whether id names a valid point.
func (s *Spline) Has(id int32) bool {
	return id >= 0 && int(id) < len(s.points)
}

// WorldToSpline finds the closest point to pos and its squared distance.
// Returns NoPoint and +Inf when nothing lies within the lookup radius;
// callers compare the distance against their own threshold.
func (s *Spline) WorldToSpline(pos core.Position3D) (int32, float64) {
	bestID := NoPoint
	bestDistSq := math.Inf(1)

	center := keyFor(pos)
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			ids := s.lookup[cellKey{x: center.x + dx, z: center.z + dz}]
			for _, id := range ids {
				d := geo.DistanceSquared(pos, s.points[id].Position)
				if d < bestDistSq {
					bestDistSq = d
					bestID = id
				}
			}
		}
	}
	return bestID, bestDistSq
}

// Forward returns the forward unit vector at id.
func (s *Spline) Forward(id int32) core.Position3D {
	return s.points[id].Forward
}

// Next returns the successor of id, NoPoint at a dead end. Junction
// branches are resolved by the caller's JunctionEvaluator; Next alone
// follows the primary edge.
func (s *Spline) Next(id int32) int32 {
	return s.points[id].NextID
}

// Previous returns the predecessor of id, NoPoint at a dead end.
func (s *Spline) Previous(id int32) int32 {
	return s.points[id].PreviousID
}

// Lanes returns the sibling lane point ids at id, own id included.
func (s *Spline) Lanes(id int32) []int32 {
	if lanes := s.points[id].LaneIDs; len(lanes) > 0 {
		return lanes
	}
	return []int32{id}
}

// IsSameDirection reports whether two points carry traffic the same way.
func (s *Spline) IsSameDirection(a, b int32) bool {
	return geo.Dot(s.points[a].Forward, s.points[b].Forward) > 0
}

// RandomLane picks a uniformly random sibling lane of id.
func (s *Spline) RandomLane(id int32, rng *rand.Rand) int32 {
	lanes := s.Lanes(id)
	return lanes[rng.Intn(len(lanes))]
}

// Branches returns the junction branch candidates leaving id, nil when id
// is not a junction start.
func (s *Spline) Branches(id int32) []int32 {
	return s.junctions[id]
}
