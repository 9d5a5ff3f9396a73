package ai

import (
	"time"

	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/pkg/core"
)

func (d *Director) obstacleLoop(stop chan struct{}) {
	ticker := time.NewTicker(obstacleUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.ObstacleUpdate()
		}
	}
}

// ObstacleUpdate runs one obstacle-detection pass over every AI slot and,
// in debug mode, emits telemetry. Best-effort: a failing slot is logged and
// the loop continues.
func (d *Director) ObstacleUpdate() {
	dt := obstacleUpdateInterval.Seconds()
	for _, car := range d.deps.EntryCars.EntryCars() {
		if !car.AiControlled() {
			continue
		}
		d.obstacleDetectCar(car, dt)
	}

	if d.cfg.Debug {
		d.emitDebugPackets()
	}
}

func (d *Director) obstacleDetectCar(car *entrycar.EntryCar, dt float64) {
	defer func() {
		if r := recover(); r != nil {
			d.deps.Logger.Error("obstacle detection panicked", "sessionId", car.SessionID, "panic", r)
		}
	}()
	car.AiObstacleDetection(d.deps.Spline, d.deps.EntryCars.Index(), dt, d.obstacleRng)
}

// emitDebugPackets samples every AI slot with at least one driving identity
// and broadcasts the fixed-layout debug packets, chunked to the packet's
// slot count. Unused slots are padded with the 0xFF session id.
func (d *Director) emitDebugPackets() {
	type sample struct {
		sessionID uint8
		obstacle  int16
		current   uint8
		maxSpeed  uint8
		target    uint8
	}

	var samples []sample
	for _, car := range d.deps.EntryCars.EntryCars() {
		if !car.AiControlled() {
			continue
		}
		states := car.InitializedStates()
		if len(states) == 0 {
			continue
		}
		lead := states[0]
		samples = append(samples, sample{
			sessionID: car.SessionID,
			obstacle:  clampInt16(lead.ClosestAiObstacleDistance),
			current:   speedToKmh(lead.CurrentSpeed),
			maxSpeed:  speedToKmh(lead.MaxSpeed),
			target:    speedToKmh(lead.TargetSpeed),
		})
	}

	for start := 0; start < len(samples); start += core.AiDebugCarsPerPacket {
		end := min(start+core.AiDebugCarsPerPacket, len(samples))
		packet := core.AiDebugPacket{}
		for i := range packet.SessionIDs {
			packet.SessionIDs[i] = core.AiDebugPadSessionID
		}
		for i, s := range samples[start:end] {
			packet.SessionIDs[i] = s.sessionID
			packet.ClosestAiObstacles[i] = s.obstacle
			packet.CurrentSpeeds[i] = s.current
			packet.MaxSpeeds[i] = s.maxSpeed
			packet.TargetSpeeds[i] = s.target
		}
		d.deps.EntryCars.BroadcastPacket(packet)
		if d.deps.Debug != nil {
			d.deps.Debug.Broadcast(packet)
		}
	}
}

// speedToKmh packs a speed in m/s into the debug packet's 8-bit km/h field.
func speedToKmh(ms float64) uint8 {
	kmh := ms * 3.6
	if kmh < 0 {
		return 0
	}
	if kmh > 255 {
		return 255
	}
	return uint8(kmh)
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
