// Package ai implements the traffic director: the periodic control loop
// that populates the road network with AI traffic around connected players.
package ai

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/apexsim/extension/internal/config"
	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/internal/session"
	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/pkg/core"
)

// obstacleUpdateInterval is the cadence of the obstacle-detection worker.
const obstacleUpdateInterval = 100 * time.Millisecond

// DebugSink receives debug telemetry beside the wire packets, e.g. the
// websocket stream.
type DebugSink interface {
	Broadcast(v any)
}

// PerfSink receives per-tick performance samples.
type PerfSink interface {
	WriteTickPoint(durationMs float64, aiCount, spawned, despawned int)
}

// Dependencies holds all dependencies for the traffic director.
type Dependencies struct {
	Config    config.AiConfig
	EntryCars *entrycar.Manager
	Spline    *spline.Spline
	Sessions  *session.Manager
	Logger    *slog.Logger

	// Optional sinks; nil disables them.
	Debug DebugSink
	Perf  PerfSink
}

// Director is the AI traffic control loop. Update and AdjustOverbooking
// serialize on an internal mutex; the obstacle worker runs beside them
// under the field-ownership contract documented on AiState.
type Director struct {
	deps Dependencies
	cfg  config.AiConfig

	rng         *rand.Rand
	obstacleRng *rand.Rand

	junctions spline.JunctionEvaluator

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}

	spawned      metric.Int64Counter
	despawned    metric.Int64Counter
	tickDuration metric.Float64Histogram
}

// New creates a director. The seed feeds both workers' random sources;
// pass a fixed seed in tests for determinism.
func New(deps Dependencies, seed int64) (*Director, error) {
	d := &Director{
		deps:        deps,
		cfg:         deps.Config,
		rng:         rand.New(rand.NewSource(seed)),
		obstacleRng: rand.New(rand.NewSource(seed + 1)),
		stopChan:    make(chan struct{}),
	}

	m := meter()
	var err error
	if d.spawned, err = m.Int64Counter("ai.states.spawned",
		metric.WithDescription("AI states promoted to initialized")); err != nil {
		return nil, err
	}
	if d.despawned, err = m.Int64Counter("ai.states.despawned",
		metric.WithDescription("AI states demoted to the pool")); err != nil {
		return nil, err
	}
	if d.tickDuration, err = m.Float64Histogram("ai.tick.duration",
		metric.WithDescription("Director tick duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}

	return d, nil
}

// Start launches the director and obstacle-detection workers.
func (d *Director) Start() {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return
	}
	d.isRunning = true
	d.stopChan = make(chan struct{})
	stop := d.stopChan
	d.mu.Unlock()

	go d.directorLoop(stop)
	go d.obstacleLoop(stop)
}

// Stop signals both workers to finish their in-flight tick and exit.
func (d *Director) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		close(d.stopChan)
		d.isRunning = false
	}
}

func (d *Director) directorLoop(stop chan struct{}) {
	ticker := time.NewTicker(d.cfg.BehaviorUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.safeTick()
		}
	}
}

// safeTick runs one director tick, catching anything so a single bad slot
// never halts the director. The next tick re-evaluates from scratch.
func (d *Director) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			d.deps.Logger.Error("director tick panicked", "panic", r)
		}
	}()
	start := time.Now()
	spawnedN, despawnedN := d.Update(d.deps.Sessions.ServerTimeMs())
	elapsed := time.Since(start)

	d.tickDuration.Record(contextless(), elapsed.Seconds()*1000)
	if d.deps.Perf != nil {
		aiCount := 0
		for _, car := range d.deps.EntryCars.EntryCars() {
			if car.AiControlled() {
				aiCount += len(car.InitializedStates())
			}
		}
		d.deps.Perf.WriteTickPoint(elapsed.Seconds()*1000, aiCount, spawnedN, despawnedN)
	}
}

type playerTarget struct {
	car       *entrycar.EntryCar
	offsetPos core.Position3D
	distSq    float64 // to the nearest AI state
}

type aiDistance struct {
	state  *entrycar.AiState
	distSq float64 // to the nearest player offset position
}

// Update runs one director tick at the given server time and returns how
// many states were spawned and despawned. Exported so tests can drive ticks
// with synthetic clocks.
func (d *Director) Update(now int64) (spawned, despawned int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	graph := d.deps.Spline
	index := d.deps.EntryCars.Index()

	// Phase 1-2: categorize slots.
	var players []playerTarget
	var aiSlots []*entrycar.EntryCar
	var initialized []*entrycar.AiState

	for _, car := range d.deps.EntryCars.EntryCars() {
		if car.AiControlled() {
			aiSlots = append(aiSlots, car)
			initialized = append(initialized, car.InitializedStates()...)
			continue
		}
		client := car.Client()
		if client == nil || !client.HasSentFirstUpdate {
			continue
		}
		if now-car.LastActiveTime >= d.cfg.PlayerAfkTimeout.Milliseconds() {
			continue
		}
		if !d.cfg.TwoWayTraffic && !d.cfg.WrongWayTraffic && !d.drivingRightWay(car) {
			continue
		}
		players = append(players, playerTarget{
			car:       car,
			offsetPos: geo.Offset(car.Status.Position, car.Status.Velocity, d.cfg.PlayerPositionOffsetMeters),
		})
	}

	// Empty world rule: no eligible players, no AI.
	if len(players) == 0 {
		for _, s := range initialized {
			s.Despawn(index)
			despawned++
		}
		d.despawned.Add(contextless(), int64(despawned))
		return 0, despawned
	}

	// Phase 3: distance matrix, reduced to two sorted vectors.
	aiMin := make([]aiDistance, len(initialized))
	for i, s := range initialized {
		aiMin[i] = aiDistance{state: s, distSq: -1}
	}
	for j := range players {
		players[j].distSq = -1
	}
	for i, s := range initialized {
		for j := range players {
			dsq := geo.DistanceSquared(s.Status.Position, players[j].offsetPos)
			if aiMin[i].distSq < 0 || dsq < aiMin[i].distSq {
				aiMin[i].distSq = dsq
			}
			if players[j].distSq < 0 || dsq < players[j].distSq {
				players[j].distSq = dsq
			}
		}
	}

	// Far-from-any-player AI despawn first; far-from-any-AI players spawn
	// first.
	sort.Slice(aiMin, func(a, b int) bool { return aiMin[a].distSq > aiMin[b].distSq })
	sort.Slice(players, func(a, b int) bool { return players[a].distSq > players[b].distSq })

	// Phase 4: despawn, then spawn.
	for _, car := range aiSlots {
		car.RemoveUnsafeStates(now, index)
	}
	for _, ad := range aiMin {
		if ad.state.Initialized && ad.distSq > d.cfg.PlayerRadiusSq && ad.state.CanDespawn(now) {
			ad.state.Despawn(index)
			despawned++
		}
	}

	var candidates []*entrycar.AiState
	for _, car := range aiSlots {
		candidates = append(candidates, car.UninitializedStates()...)
	}

	pool := players
	for len(pool) > 0 && len(candidates) > 0 {
		k := triangularIndex(d.rng, len(pool))
		target := pool[k]
		pool = append(pool[:k], pool[k+1:]...)

		spawnID, ok := d.findSpawnPoint(graph, target.car)
		if !ok {
			continue
		}
		spawnPos := graph.Point(spawnID).Position
		previousAi, nextAi := d.neighborStates(graph, index, spawnID)

		for i, state := range candidates {
			if state.EntryCar().CanSpawnAiState(spawnPos, state, previousAi, nextAi) {
				state.Teleport(graph, index, spawnID, now)
				candidates = append(candidates[:i], candidates[i+1:]...)
				spawned++
				break
			}
		}
		// No acceptor: the player is discarded for this tick, the spawn
		// point is not retried with another player.
	}

	d.spawned.Add(contextless(), int64(spawned))
	d.despawned.Add(contextless(), int64(despawned))
	return spawned, despawned
}

// drivingRightWay reports whether the car moves along its nearest spline
// point's forward direction.
func (d *Director) drivingRightWay(car *entrycar.EntryCar) bool {
	id, _ := d.deps.Spline.WorldToSpline(car.Status.Position)
	if id == spline.NoPoint {
		return false
	}
	return geo.Dot(d.deps.Spline.Forward(id), car.Status.Velocity) > 0
}

// neighborStates finds the closest indexed AI states within 50 m backward
// and forward along the graph from the spawn point.
func (d *Director) neighborStates(graph *spline.Spline, index *entrycar.SlowestStateIndex, spawnID int32) (previous, next *entrycar.AiState) {
	const searchMeters = 50.0

	traveled := 0.0
	id := spawnID
	for traveled < searchMeters {
		prev := graph.Previous(id)
		if prev == spline.NoPoint || prev == spawnID {
			break
		}
		traveled += graph.Point(prev).Length
		id = prev
		if s, ok := index.Get(id); ok && s.Initialized {
			previous = s
			break
		}
	}

	traveled = 0.0
	id = spawnID
	for traveled < searchMeters {
		traveled += graph.Point(id).Length
		nxt := graph.Next(id)
		if nxt == spline.NoPoint || nxt == spawnID {
			break
		}
		id = nxt
		if s, ok := index.Get(id); ok && s.Initialized {
			next = s
			break
		}
	}

	return previous, next
}
