package entrycar

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/pkg/core"
)

// ObstacleNone is the obstacle distance reported when nothing is ahead.
const ObstacleNone int32 = -1

// obstacleScanMeters bounds the forward scan of the obstacle detector.
const obstacleScanMeters = 150.0

// aiAccelerationMs2 is the rate at which an AI state's current speed rises
// toward its target speed between behavior updates; braking uses twice it.
const aiAccelerationMs2 = 3.0

// AiState is one AI driving identity multiplexed onto a slot. States are
// pooled: created once, promoted by Teleport, demoted by Despawn, never
// destroyed.
//
// Field ownership is split between the two workers. The director owns
// Initialized, SplinePointID and SpawnProtectionEnds; the obstacle worker
// owns CurrentSpeed, TargetSpeed and ClosestAiObstacleDistance. Neither
// touches the other's fields outside spawn/despawn, which keeps both loops
// lock-free.
type AiState struct {
	entryCar *EntryCar

	Initialized bool
	Status      core.CarStatus

	CurrentSpeed float64 // m/s
	TargetSpeed  float64 // m/s
	MaxSpeed     float64 // m/s

	SplinePointID       int32
	SpawnProtectionEnds int64 // server ms

	// ClosestAiObstacleDistance is centimetres to the nearest AI ahead,
	// ObstacleNone when clear. Packed to 16 bits for the debug packet.
	ClosestAiObstacleDistance int32

	speedFactor float64

	junctions spline.JunctionEvaluator

	collisionStopScheduled atomic.Bool
	collisionStopRequested atomic.Bool
	collisionStopCount     atomic.Int64
}

// newAiState creates a pooled identity. speedFactor spreads the slot's max
// speed across its identities so traffic doesn't move in lockstep.
func newAiState(car *EntryCar, speedFactor float64) *AiState {
	return &AiState{
		entryCar:                  car,
		speedFactor:               speedFactor,
		SplinePointID:             spline.NoPoint,
		ClosestAiObstacleDistance: ObstacleNone,
	}
}

// EntryCar returns the slot this state belongs to.
func (s *AiState) EntryCar() *EntryCar {
	return s.entryCar
}

// Teleport promotes the state to initialized at the given spline point.
func (s *AiState) Teleport(graph *spline.Spline, index *SlowestStateIndex, pointID int32, now int64) {
	if s.SplinePointID != spline.NoPoint {
		index.Remove(s.SplinePointID, s)
	}

	point := graph.Point(pointID)
	s.SplinePointID = pointID
	s.MaxSpeed = s.entryCar.aiMaxSpeed() * s.speedFactor
	s.CurrentSpeed = s.MaxSpeed * 0.8
	s.TargetSpeed = s.MaxSpeed
	s.Status = core.CarStatus{
		Timestamp: now,
		Position:  point.Position,
		Velocity:  geo.Scale(point.Forward, s.CurrentSpeed),
	}
	s.SpawnProtectionEnds = now + s.entryCar.cfg.SpawnProtectionMs
	s.ClosestAiObstacleDistance = ObstacleNone
	s.Initialized = true
	s.collisionStopRequested.Store(false)
	s.collisionStopScheduled.Store(false)
	s.junctions.Clear()

	index.Set(pointID, s)
}

// Despawn demotes the state back to the pool.
func (s *AiState) Despawn(index *SlowestStateIndex) {
	if s.SplinePointID != spline.NoPoint {
		index.Remove(s.SplinePointID, s)
	}
	s.Initialized = false
	s.SplinePointID = spline.NoPoint
	s.ClosestAiObstacleDistance = ObstacleNone
}

// CanDespawn reports whether the state may be demoted: spawn protection must
// have elapsed.
func (s *AiState) CanDespawn(now int64) bool {
	return now >= s.SpawnProtectionEnds
}

// StopForCollision zeroes the state's kinematic targets. Applied by the
// obstacle worker on its next pass, so it never races the worker's writes.
func (s *AiState) StopForCollision() {
	s.collisionStopRequested.Store(true)
	s.collisionStopCount.Add(1)
}

// CollisionStopCount returns how many times StopForCollision fired.
func (s *AiState) CollisionStopCount() int64 {
	return s.collisionStopCount.Load()
}

// ScheduleStopForCollision arms StopForCollision after delay, at most once
// per spawn. The random delay de-synchronizes reactions of adjacent AI.
func (s *AiState) ScheduleStopForCollision(delay time.Duration) {
	if !s.collisionStopScheduled.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(delay, s.StopForCollision)
}

// updateObstacle recomputes the state's obstacle telemetry and kinematic
// targets. Runs on the obstacle worker only.
func (s *AiState) updateObstacle(graph *spline.Spline, index *SlowestStateIndex, dt float64, rng *rand.Rand) {
	obstacle, distance := s.findObstacleAhead(graph, index, rng)

	switch {
	case obstacle == nil:
		s.ClosestAiObstacleDistance = ObstacleNone
		s.TargetSpeed = s.MaxSpeed
	default:
		s.ClosestAiObstacleDistance = int32(distance * 100)
		brakingDistance := s.CurrentSpeed * s.CurrentSpeed / (2 * aiAccelerationMs2)
		switch {
		case distance < 10:
			s.TargetSpeed = 0
		case distance < brakingDistance+10:
			s.TargetSpeed = min(s.MaxSpeed, obstacle.CurrentSpeed)
		default:
			s.TargetSpeed = s.MaxSpeed
		}
	}

	if s.collisionStopRequested.Load() {
		s.TargetSpeed = 0
		s.CurrentSpeed = 0
	}

	// chase the target
	if s.CurrentSpeed < s.TargetSpeed {
		s.CurrentSpeed = min(s.TargetSpeed, s.CurrentSpeed+aiAccelerationMs2*dt)
	} else if s.CurrentSpeed > s.TargetSpeed {
		s.CurrentSpeed = max(s.TargetSpeed, s.CurrentSpeed-2*aiAccelerationMs2*dt)
	}

	if s.SplinePointID != spline.NoPoint {
		s.Status.Velocity = geo.Scale(graph.Forward(s.SplinePointID), s.CurrentSpeed)
	}
}

// findObstacleAhead walks the graph forward from the state's point and
// returns the first other indexed state within the scan range, with its
// distance in meters.
func (s *AiState) findObstacleAhead(graph *spline.Spline, index *SlowestStateIndex, rng *rand.Rand) (*AiState, float64) {
	if s.SplinePointID == spline.NoPoint {
		return nil, 0
	}
	id := s.SplinePointID
	traveled := 0.0
	for traveled < obstacleScanMeters {
		traveled += graph.Point(id).Length
		next := s.junctions.Next(graph, id, rng)
		if next == spline.NoPoint {
			return nil, 0
		}
		id = next
		if other, ok := index.Get(id); ok && other != s && other.Initialized {
			return other, traveled
		}
	}
	return nil, 0
}
