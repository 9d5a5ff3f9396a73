package automod

import (
	"fmt"

	"github.com/apexsim/extension/internal/config"
	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/pkg/core"
)

// nauticalTwilightAltitudeDeg is the sun altitude below which the
// no-lights rule considers it night.
const nauticalTwilightAltitudeDeg = -12.0

type violation int

const (
	violationNoLights violation = iota
	violationWrongWay
	violationBlockingRoad
	violationCount
)

func (v violation) flag() core.ViolationFlags {
	switch v {
	case violationNoLights:
		return core.ViolationNoLights
	case violationWrongWay:
		return core.ViolationWrongWay
	default:
		return core.ViolationNoParking
	}
}

func (v violation) String() string {
	switch v {
	case violationNoLights:
		return "driving without lights"
	case violationWrongWay:
		return "driving the wrong way"
	default:
		return "blocking the road"
	}
}

type violationState struct {
	seconds     int
	pitCount    int
	warningSent bool
}

// carInstance is one player's moderation state: per-violation counters plus
// the graph position cached for the current tick.
type carInstance struct {
	currentFlags core.ViolationFlags

	splinePointID int32
	splineDistSq  float64

	states [violationCount]violationState
}

func newCarInstance() *carInstance {
	return &carInstance{splinePointID: spline.NoPoint}
}

func flagsPacket(flags core.ViolationFlags) core.AutoModerationFlags {
	return core.AutoModerationFlags{Flags: flags}
}

// noLightsActive: night (nautical twilight), lights off, moving.
func (m *Moderator) noLightsActive(car *entrycar.EntryCar) bool {
	sun := m.deps.Weather.SunPosition()
	if sun == nil || sun.AltitudeDeg >= nauticalTwilightAltitudeDeg {
		return false
	}
	if car.Status.StatusFlags&core.FlagLightsOn != 0 {
		return false
	}
	return geo.LengthSquared(car.Status.Velocity) > m.cfg.NoLights.SpeedThresholdSq
}

// wrongWayActive: on a lane, moving, against the lane's forward direction.
func (m *Moderator) wrongWayActive(inst *carInstance, car *entrycar.EntryCar) bool {
	if inst.splinePointID == spline.NoPoint || inst.splineDistSq >= m.laneRadiusSq {
		return false
	}
	if geo.LengthSquared(car.Status.Velocity) <= m.cfg.WrongWay.SpeedThresholdSq {
		return false
	}
	return geo.Dot(m.deps.Spline.Forward(inst.splinePointID), car.Status.Velocity) < 0
}

// blockingRoadActive: on a lane, below the crawl threshold.
func (m *Moderator) blockingRoadActive(inst *carInstance, car *entrycar.EntryCar) bool {
	if inst.splinePointID == spline.NoPoint || inst.splineDistSq >= m.laneRadiusSq {
		return false
	}
	return geo.LengthSquared(car.Status.Velocity) < m.cfg.BlockingRoad.SpeedThresholdSq
}

// updateViolation advances one violation's state machine by one tick.
func (m *Moderator) updateViolation(inst *carInstance, car *entrycar.EntryCar, client *entrycar.Client, v violation, cfg config.ViolationConfig, active bool) {
	st := &inst.states[v]

	if !active {
		st.seconds = 0
		st.warningSent = false
		inst.currentFlags &^= v.flag()
		return
	}

	st.seconds++
	inst.currentFlags |= v.flag()

	if st.seconds > cfg.DurationSeconds {
		if st.pitCount < cfg.PitsBeforeKick {
			m.teleportToPits(inst, car, client, v, st.seconds)
			st.pitCount++
		} else {
			m.kick(inst, car, client, v, st.seconds)
		}
		// a fresh escalation cycle starts after either action
		st.seconds = 0
		st.warningSent = false
		return
	}

	if st.seconds > cfg.DurationSeconds/2 && !st.warningSent {
		m.warn(inst, car, client, v, st.pitCount >= cfg.PitsBeforeKick)
		st.warningSent = true
	}
}

// violationDetails captures the metrics behind a moderation action for the
// audit row.
func (m *Moderator) violationDetails(inst *carInstance, car *entrycar.EntryCar) map[string]any {
	details := map[string]any{
		"speedMs":  geo.Length(car.Status.Velocity),
		"lightsOn": car.Status.StatusFlags&core.FlagLightsOn != 0,
	}
	if sun := m.deps.Weather.SunPosition(); sun != nil {
		details["sunAltitudeDeg"] = sun.AltitudeDeg
	}
	if inst.splinePointID != spline.NoPoint {
		details["splinePointId"] = inst.splinePointID
		details["splineDistanceSq"] = inst.splineDistSq
	}
	return details
}

func (m *Moderator) warn(inst *carInstance, car *entrycar.EntryCar, client *entrycar.Client, v violation, willKick bool) {
	consequence := "teleported to pits"
	if willKick {
		consequence = "kicked"
	}
	if m.cfg.EnableClientMessages {
		m.deps.EntryCars.SendPacket(car.SessionID, core.ChatMessage{
			SessionID: core.ServerSessionID,
			Message:   fmt.Sprintf("You are %s! Stop or you will be %s.", v, consequence),
		})
	}
	if m.deps.Audit != nil {
		m.deps.Audit.RecordViolation(car.SessionID, client.Name, client.Guid, v.String(), "warning", 0, m.violationDetails(inst, car))
	}
}

// teleportToPits resets the car to its grid slot by replaying the session
// header with the slot's clock offset applied.
func (m *Moderator) teleportToPits(inst *carInstance, car *entrycar.EntryCar, client *entrycar.Client, v violation, seconds int) {
	current := m.deps.Sessions.CurrentSession()
	if current == nil {
		m.deps.Logger.Warn("pit teleport skipped, no current session", "sessionId", car.SessionID)
		return
	}

	m.deps.EntryCars.SendPacket(car.SessionID, core.CurrentSessionUpdate{
		Session:   current.Configuration,
		Grid:      current.Grid,
		TrackGrip: m.deps.Weather.TrackGrip(),
		StartTime: current.StartTimeMs - car.TimeOffset,
	})
	m.deps.EntryCars.BroadcastPacket(core.ChatMessage{
		SessionID: core.ServerSessionID,
		Message:   fmt.Sprintf("%s has been sent to pits for %s.", client.Name, v),
	})

	m.deps.Logger.Info("player sent to pits", "player", client.Name, "violation", v.String(), "seconds", seconds)
	if m.deps.Audit != nil {
		m.deps.Audit.RecordViolation(car.SessionID, client.Name, client.Guid, v.String(), "pit", seconds, m.violationDetails(inst, car))
	}
}

// kick removes the player. Fire-and-forget: the kick may outlive the tick.
func (m *Moderator) kick(inst *carInstance, car *entrycar.EntryCar, client *entrycar.Client, v violation, seconds int) {
	reason := fmt.Sprintf("kicked for %s", v)
	m.deps.EntryCars.KickAsync(client, reason)
	m.deps.EntryCars.BroadcastPacket(core.ChatMessage{
		SessionID: core.ServerSessionID,
		Message:   fmt.Sprintf("%s has been kicked for %s.", client.Name, v),
	})

	m.deps.Logger.Info("player kicked", "player", client.Name, "violation", v.String(), "seconds", seconds)
	if m.deps.Audit != nil {
		m.deps.Audit.RecordViolation(car.SessionID, client.Name, client.Guid, v.String(), "kick", seconds, m.violationDetails(inst, car))
	}
}
