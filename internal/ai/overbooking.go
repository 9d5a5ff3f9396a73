package ai

import (
	"math"

	"github.com/apexsim/extension/internal/dispatcher"
	"github.com/apexsim/extension/internal/entrycar"
)

// AdjustOverbooking recomputes how many AI identities each AI slot may
// multiplex and applies the targets. The sum of all targets equals the
// computed target count exactly; the remainder goes to the first slots.
//
// Idempotent and serialized against Update through the director mutex, so
// connection events may call it from any goroutine.
func (d *Director) AdjustOverbooking() {
	d.mu.Lock()
	defer d.mu.Unlock()

	index := d.deps.EntryCars.Index()

	var aiSlots []*entrycar.EntryCar
	for _, car := range d.deps.EntryCars.EntryCars() {
		if car.Client() == nil && car.AiControlled() {
			aiSlots = append(aiSlots, car)
		}
	}
	if len(aiSlots) == 0 {
		return
	}

	playerCount := d.deps.EntryCars.ConnectedCount()

	perPlayer := int(math.Round(float64(d.cfg.AiPerPlayerTargetCount) * d.cfg.TrafficDensity))
	if perPlayer > len(aiSlots) {
		perPlayer = len(aiSlots)
	}
	if perPlayer < 0 {
		perPlayer = 0
	}

	targetAiCount := playerCount * perPlayer
	if targetAiCount > d.cfg.MaxAiTargetCount {
		targetAiCount = d.cfg.MaxAiTargetCount
	}

	base := targetAiCount / len(aiSlots)
	rest := targetAiCount % len(aiSlots)
	for i, car := range aiSlots {
		n := base
		if i < rest {
			n++
		}
		car.SetTargetAiStateCount(n, index)
	}

	d.deps.Logger.Debug("overbooking adjusted",
		"playerCount", playerCount,
		"aiSlots", len(aiSlots),
		"targetAiCount", targetAiCount)
}

// RegisterEventHandlers subscribes the director to connection events so
// overbooking re-tunes on connect, checksum, and disconnect. Buffered
// handlers serialize the adjustments away from the network layer's thread.
// observe, when non-nil, sees each event after the adjustment (the audit
// trail hangs off it).
func (d *Director) RegisterEventHandlers(events *dispatcher.Dispatcher, observe func(dispatcher.Event)) {
	adjust := func(e dispatcher.Event) error {
		d.AdjustOverbooking()
		if observe != nil {
			observe(e)
		}
		return nil
	}
	events.Register(entrycar.EventClientConnected, adjust, dispatcher.Buffered(64), dispatcher.Logged())
	events.Register(entrycar.EventChecksumPassed, adjust, dispatcher.Buffered(64), dispatcher.Logged())
	events.Register(entrycar.EventClientDisconnected, adjust, dispatcher.Buffered(64), dispatcher.Logged())
}
