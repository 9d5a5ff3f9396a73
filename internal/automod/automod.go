// Package automod implements the auto-moderation director: per-player
// violation state machines with warn, pit-teleport, and kick escalation.
package automod

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apexsim/extension/internal/config"
	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/internal/session"
	"github.com/apexsim/extension/internal/spline"
)

// tickInterval is the moderation cadence.
const tickInterval = time.Second

// ErrConfiguration is returned when enabled violations miss their
// preconditions. Fatal by design: the subsystem refuses to start.
var ErrConfiguration = errors.New("auto moderation configuration invalid")

// AuditSink receives moderation actions for the audit trail, with the
// metrics that triggered them. Nil disables auditing.
type AuditSink interface {
	RecordViolation(sessionID uint8, playerName, playerGuid, violation, action string, seconds int, details map[string]any)
}

// Dependencies holds all dependencies for the moderation director.
type Dependencies struct {
	Config config.AutoModConfig

	// LaneWidthMeters defines the on-lane radius for the spline-bound
	// violations.
	LaneWidthMeters float64

	EntryCars *entrycar.Manager
	Sessions  *session.Manager
	Weather   *session.WeatherManager

	// Spline may be nil; the spline-bound violations then must be
	// disabled.
	Spline *spline.Spline

	Logger *slog.Logger
	Audit  AuditSink
}

// Moderator evaluates every connected player against the enabled violation
// state machines once per second.
type Moderator struct {
	deps Dependencies
	cfg  config.AutoModConfig

	laneRadiusSq float64

	instances map[uint8]*carInstance

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// New validates the configuration and creates the moderator. Enabling
// wrong-way or blocking-road without an AI spline, or no-lights without sun
// data, is a configuration error.
func New(deps Dependencies) (*Moderator, error) {
	if deps.Config.WrongWay.Enabled && deps.Spline == nil {
		return nil, fmt.Errorf("%w: wrong way kick requires an AI spline", ErrConfiguration)
	}
	if deps.Config.BlockingRoad.Enabled && deps.Spline == nil {
		return nil, fmt.Errorf("%w: blocking road kick requires an AI spline", ErrConfiguration)
	}
	if deps.Config.NoLights.Enabled && deps.Weather.SunPosition() == nil {
		return nil, fmt.Errorf("%w: no lights kick requires sun position data", ErrConfiguration)
	}

	laneRadius := deps.LaneWidthMeters / 2 * 1.25

	return &Moderator{
		deps:         deps,
		cfg:          deps.Config,
		laneRadiusSq: laneRadius * laneRadius,
		instances:    make(map[uint8]*carInstance),
	}, nil
}

// Start launches the 1 Hz moderation worker.
func (m *Moderator) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.safeTick()
			}
		}
	}()
}

// Stop signals the worker to exit after its in-flight tick.
func (m *Moderator) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		close(m.stopChan)
		m.isRunning = false
	}
}

func (m *Moderator) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			m.deps.Logger.Error("auto moderation tick panicked", "panic", r)
		}
	}()
	m.Tick()
}

// Tick evaluates every connected player once. Exported so tests can drive
// the state machines without the timer.
func (m *Moderator) Tick() {
	for _, car := range m.deps.EntryCars.EntryCars() {
		client := car.Client()
		if client == nil || !client.HasSentFirstUpdate || client.IsAdministrator {
			continue
		}
		m.tickCar(car, client)
	}
}

func (m *Moderator) tickCar(car *entrycar.EntryCar, client *entrycar.Client) {
	inst := m.instance(car.SessionID)

	// refresh the cached graph position once per tick
	if m.deps.Spline != nil {
		inst.splinePointID, inst.splineDistSq = m.deps.Spline.WorldToSpline(car.Status.Position)
	} else {
		inst.splinePointID = spline.NoPoint
	}

	oldFlags := inst.currentFlags

	if m.cfg.NoLights.Enabled {
		m.updateViolation(inst, car, client, violationNoLights, m.cfg.NoLights, m.noLightsActive(car))
	}
	if m.cfg.WrongWay.Enabled {
		m.updateViolation(inst, car, client, violationWrongWay, m.cfg.WrongWay, m.wrongWayActive(inst, car))
	}
	if m.cfg.BlockingRoad.Enabled {
		m.updateViolation(inst, car, client, violationBlockingRoad, m.cfg.BlockingRoad, m.blockingRoadActive(inst, car))
	}

	if m.cfg.EnableClientMessages && inst.currentFlags != oldFlags {
		m.deps.EntryCars.SendPacket(car.SessionID, flagsPacket(inst.currentFlags))
	}
}

func (m *Moderator) instance(sessionID uint8) *carInstance {
	inst, ok := m.instances[sessionID]
	if !ok {
		inst = newCarInstance()
		m.instances[sessionID] = inst
	}
	return inst
}
