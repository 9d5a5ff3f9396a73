// Package entrycar models the server's fixed car slots and the AI identity
// pool multiplexed onto them.
package entrycar

import (
	"math/rand"
	"sync"

	"github.com/apexsim/extension/internal/config"
	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/pkg/core"
)

// EntryCar is one fixed slot on the server. A slot hosts either a connected
// client or a pool of AI identities; between a client's connect and its
// checksum the slot holds the client and stays AI-controlled.
type EntryCar struct {
	SessionID  uint8
	Model      string
	AiMode     core.AiMode
	TimeOffset int64

	// AiMaxSpeedMs caps this slot's AI identities; zero falls back to the
	// configured default.
	AiMaxSpeedMs float64

	cfg *config.AiConfig

	mu           sync.Mutex
	client       *Client
	aiControlled bool

	// Status and LastActiveTime are written by the network layer's update
	// path and read by the directors.
	Status         core.CarStatus
	LastActiveTime int64

	aiStates           []*AiState
	targetAiStateCount int
}

// NewEntryCar creates a slot. Slots with an AI mode other than none start
// AI-controlled with a single pooled state.
func NewEntryCar(sessionID uint8, model string, aiMode core.AiMode, cfg *config.AiConfig) *EntryCar {
	c := &EntryCar{
		SessionID: sessionID,
		Model:     model,
		AiMode:    aiMode,
		cfg:       cfg,
	}
	if aiMode != core.AiModeNone {
		c.aiControlled = true
		c.targetAiStateCount = 1
		c.aiStates = []*AiState{newAiState(c, speedFactorFor(0))}
	}
	return c
}

// speedFactorFor spreads identity max speeds over [0.85, 1.0] by pool
// position.
func speedFactorFor(i int) float64 {
	return 0.85 + 0.05*float64(i%4)
}

func (c *EntryCar) aiMaxSpeed() float64 {
	if c.AiMaxSpeedMs > 0 {
		return c.AiMaxSpeedMs
	}
	return c.cfg.DefaultMaxSpeedMs
}

// Client returns the occupying client, nil for AI slots.
func (c *EntryCar) Client() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// AiControlled reports whether the slot currently hosts AI.
func (c *EntryCar) AiControlled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aiControlled
}

// SetClient attaches or detaches a client. Detaching flips the slot back to
// AI when its mode allows it.
func (c *EntryCar) SetClient(client *Client, index *SlowestStateIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
	if client == nil && c.AiMode != core.AiModeNone {
		c.setAiControlLocked(true, index)
	}
}

// SetAiControl switches the slot between player and AI occupancy.
// Dropping AI control despawns every state.
func (c *EntryCar) SetAiControl(enabled bool, index *SlowestStateIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAiControlLocked(enabled, index)
}

func (c *EntryCar) setAiControlLocked(enabled bool, index *SlowestStateIndex) {
	if c.aiControlled == enabled {
		return
	}
	c.aiControlled = enabled
	if enabled {
		if len(c.aiStates) == 0 {
			c.aiStates = []*AiState{newAiState(c, speedFactorFor(0))}
		}
	} else {
		for _, s := range c.aiStates {
			if s.Initialized {
				s.Despawn(index)
			}
		}
	}
}

// TargetAiStateCount returns the slot's overbooking target.
func (c *EntryCar) TargetAiStateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetAiStateCount
}

// SetTargetAiStateCount re-tunes the slot's overbooking. The pool grows
// lazily and never shrinks; surplus initialized states beyond the target
// are despawned.
func (c *EntryCar) SetTargetAiStateCount(n int, index *SlowestStateIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetAiStateCount = n
	for len(c.aiStates) < n {
		c.aiStates = append(c.aiStates, newAiState(c, speedFactorFor(len(c.aiStates))))
	}
	initialized := 0
	for _, s := range c.aiStates {
		if !s.Initialized {
			continue
		}
		initialized++
		if initialized > n {
			s.Despawn(index)
		}
	}
}

// AiStates returns the slot's full identity pool.
func (c *EntryCar) AiStates() []*AiState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aiStates
}

// InitializedStates returns the currently-driving identities.
func (c *EntryCar) InitializedStates() []*AiState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*AiState, 0, len(c.aiStates))
	for _, s := range c.aiStates {
		if s.Initialized {
			out = append(out, s)
		}
	}
	return out
}

// UninitializedStates returns pooled identities up to the overbooking
// target, the spawn candidates of the next director tick.
func (c *EntryCar) UninitializedStates() []*AiState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*AiState, 0, len(c.aiStates))
	budget := c.targetAiStateCount
	for _, s := range c.aiStates {
		if budget == 0 {
			break
		}
		if s.Initialized {
			budget--
			continue
		}
		out = append(out, s)
		budget--
	}
	return out
}

// RemoveUnsafeStates despawns initialized states that sit too close to
// another initialized state of the same slot. All of a slot's identities
// share one wire id, so two of them rendered near each other glitch on
// clients. Spawn-protected states are immune.
func (c *EntryCar) RemoveUnsafeStates(now int64, index *SlowestStateIndex) {
	states := c.InitializedStates()
	for i, s := range states {
		if !s.Initialized || !s.CanDespawn(now) {
			continue
		}
		for j, other := range states {
			if i == j || !other.Initialized {
				continue
			}
			if geo.DistanceSquared(s.Status.Position, other.Status.Position) < c.cfg.StateSafetyDistanceSq {
				s.Despawn(index)
				break
			}
		}
	}
}

// CanSpawnAiState gates one pooled identity against a spawn point and its
// graph neighbors: minimum headway both ways, and the follower must not be
// faster than the newcomer can drive.
func (c *EntryCar) CanSpawnAiState(spawnPos core.Position3D, state *AiState, previous, next *AiState) bool {
	minHeadwaySq := c.cfg.MinStateHeadwayMeters * c.cfg.MinStateHeadwayMeters
	if previous != nil {
		if geo.DistanceSquared(spawnPos, previous.Status.Position) < minHeadwaySq {
			return false
		}
		// the follower must be able to match the newcomer's pace
		if previous.CurrentSpeed > c.aiMaxSpeed()*state.speedFactor {
			return false
		}
	}
	if next != nil && geo.DistanceSquared(spawnPos, next.Status.Position) < minHeadwaySq {
		return false
	}
	return true
}

// IsPositionSafe is this slot's veto over a candidate spawn position: false
// when one of its own initialized states already sits within the state
// safety radius.
func (c *EntryCar) IsPositionSafe(pos core.Position3D) bool {
	for _, s := range c.InitializedStates() {
		if geo.DistanceSquared(pos, s.Status.Position) < c.cfg.StateSafetyDistanceSq {
			return false
		}
	}
	return true
}

// AiObstacleDetection re-evaluates every initialized state's obstacle
// telemetry and kinematic targets. Called by the obstacle worker only.
func (c *EntryCar) AiObstacleDetection(graph *spline.Spline, index *SlowestStateIndex, dt float64, rng *rand.Rand) {
	for _, s := range c.InitializedStates() {
		s.updateObstacle(graph, index, dt, rng)
	}
}
