package ai

import (
	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/internal/spline"
)

// safetyStepPoints is how far the safety loop advances per retry.
const safetyStepPoints = 5

// findSpawnPoint computes a safe spawn point ahead of (or behind) the
// target player. Returns false when the player is off the spline, at a dead
// end, or no safe point exists within the search budget.
func (d *Director) findSpawnPoint(graph *spline.Spline, player *entrycar.EntryCar) (int32, bool) {
	pointID, distSq := graph.WorldToSpline(player.Status.Position)
	if pointID == spline.NoPoint || graph.Next(pointID) == spline.NoPoint || distSq > d.cfg.MaxPlayerDistanceToAiSplineSq {
		return spline.NoPoint, false
	}

	direction := 1
	if geo.Dot(graph.Forward(pointID), player.Status.Velocity) < 0 {
		direction = -1
	}

	spawnDistance := d.cfg.MinSpawnDistancePoints +
		d.rng.Intn(d.cfg.MaxSpawnDistancePoints-d.cfg.MinSpawnDistancePoints)

	candidate, ok := d.junctions.Traverse(graph, pointID, spawnDistance*direction, d.rng)
	if !ok {
		return spline.NoPoint, false
	}

	candidate = d.selectLaneForPlayer(graph, candidate, player)

	if graph.Next(candidate) != spline.NoPoint {
		direction = 1
		if geo.Dot(graph.Forward(candidate), player.Status.Velocity) < 0 {
			direction = -1
		}
	}

	// Safety loop. The budget is measured as id displacement from the
	// first candidate, which only tracks real travel on contiguous id
	// ranges; crossing a junction into another lane's id range undercounts
	// and extends the search. Known quirk, kept as-is.
	searchStart := candidate
	budget := int32(d.cfg.MaxSpawnDistancePoints - spawnDistance)
	for !d.isPositionSafe(graph, candidate) {
		if abs32(candidate-searchStart) > budget {
			return spline.NoPoint, false
		}
		candidate, ok = d.junctions.Traverse(graph, candidate, safetyStepPoints*direction, d.rng)
		if !ok {
			return spline.NoPoint, false
		}
	}

	candidate = d.selectLaneForPlayer(graph, candidate, player)
	return candidate, true
}

// selectLaneForPlayer picks a lane at pointID for traffic spawned around
// player. With player prioritization on a two-way track, the lane matching
// the player's travel direction is preferred with the configured
// probability; otherwise lanes are uniform random.
func (d *Director) selectLaneForPlayer(graph *spline.Spline, pointID int32, player *entrycar.EntryCar) int32 {
	if !d.cfg.PrioritizePlayerTraffic || !d.cfg.TwoWayTraffic {
		return graph.RandomLane(pointID, d.rng)
	}

	lanes := graph.Lanes(pointID)
	if len(lanes) <= 1 {
		return graph.RandomLane(pointID, d.rng)
	}

	playerID, _ := graph.WorldToSpline(player.Status.Position)
	if playerID == spline.NoPoint {
		return graph.RandomLane(pointID, d.rng)
	}

	var sameDirection, oppositeDirection []int32
	for _, lane := range lanes {
		if graph.IsSameDirection(playerID, lane) {
			sameDirection = append(sameDirection, lane)
		} else {
			oppositeDirection = append(oppositeDirection, lane)
		}
	}

	switch {
	case len(sameDirection) > 0 && len(oppositeDirection) > 0:
		if d.rng.Float64() < d.cfg.SameDirectionTrafficProbability {
			return sameDirection[d.rng.Intn(len(sameDirection))]
		}
		return oppositeDirection[d.rng.Intn(len(oppositeDirection))]
	case len(sameDirection) > 0:
		return sameDirection[d.rng.Intn(len(sameDirection))]
	case len(oppositeDirection) > 0:
		return oppositeDirection[d.rng.Intn(len(oppositeDirection))]
	default:
		return graph.RandomLane(pointID, d.rng)
	}
}

// isPositionSafe checks a candidate point against every AI slot's own
// safety predicate and every connected player's position.
func (d *Director) isPositionSafe(graph *spline.Spline, pointID int32) bool {
	pos := graph.Point(pointID).Position

	for _, car := range d.deps.EntryCars.EntryCars() {
		if car.AiControlled() {
			if !car.IsPositionSafe(pos) {
				return false
			}
			continue
		}
		if car.Client() == nil {
			continue
		}
		if geo.DistanceSquared(car.Status.Position, pos) < d.cfg.SpawnSafetyDistanceToPlayerSq {
			return false
		}
	}
	return true
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
