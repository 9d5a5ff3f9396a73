package ai

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/extension/pkg/core"
)

func overbookingSum(w *world) int {
	total := 0
	for _, car := range w.cars {
		if car.Client() == nil && car.AiControlled() {
			total += car.TargetAiStateCount()
		}
	}
	return total
}

// Overbooking conservation: the slot targets always sum to the computed
// target exactly.
func TestOverbookingConservation(t *testing.T) {
	graph := straightGraph(t, 100)

	for players := 1; players <= 5; players++ {
		t.Run(fmt.Sprintf("%d players", players), func(t *testing.T) {
			cfg := testConfig()
			w := newWorld(t, cfg, graph, 8, 10)

			for i := 0; i < players; i++ {
				w.connectPlayer(t, uint8(i), core.Position3D{X: float64(i) * 50}, core.Position3D{X: 10}, 0)
			}
			w.director.AdjustOverbooking()

			expected := players * 3 // aiPerPlayerTargetCount * density
			assert.Equal(t, expected, overbookingSum(w))
		})
	}
}

func TestOverbooking_MaxAiTargetClamp(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAiTargetCount = 4
	w := newWorld(t, cfg, straightGraph(t, 100), 8, 10)

	for i := 0; i < 3; i++ {
		w.connectPlayer(t, uint8(i), core.Position3D{X: float64(i) * 50}, core.Position3D{X: 10}, 0)
	}
	w.director.AdjustOverbooking()

	assert.Equal(t, 4, overbookingSum(w))
}

func TestOverbooking_PerPlayerClampedToSlots(t *testing.T) {
	cfg := testConfig()
	cfg.AiPerPlayerTargetCount = 20
	w := newWorld(t, cfg, straightGraph(t, 100), 8, 4)

	w.connectPlayer(t, 0, core.Position3D{X: 0}, core.Position3D{X: 10}, 0)
	w.director.AdjustOverbooking()

	// per-player count clamps to the AI slot count
	assert.Equal(t, 4, overbookingSum(w))
}

func TestOverbooking_DensityScales(t *testing.T) {
	cfg := testConfig()
	cfg.TrafficDensity = 2.0
	w := newWorld(t, cfg, straightGraph(t, 100), 8, 10)

	w.connectPlayer(t, 0, core.Position3D{X: 0}, core.Position3D{X: 10}, 0)
	w.director.AdjustOverbooking()

	assert.Equal(t, 6, overbookingSum(w))
}

func TestOverbooking_RemainderSpread(t *testing.T) {
	cfg := testConfig()
	cfg.AiPerPlayerTargetCount = 7
	w := newWorld(t, cfg, straightGraph(t, 100), 8, 3)

	w.connectPlayer(t, 0, core.Position3D{X: 0}, core.Position3D{X: 10}, 0)
	w.director.AdjustOverbooking()

	// clamp to 3 slots: target 3, base 1 rest 0
	var targets []int
	for _, car := range w.cars {
		if car.Client() == nil && car.AiControlled() {
			targets = append(targets, car.TargetAiStateCount())
		}
	}
	require.Len(t, targets, 3)
	assert.Equal(t, []int{1, 1, 1}, targets)
}

func TestOverbooking_NoPlayers(t *testing.T) {
	w := newWorld(t, testConfig(), straightGraph(t, 100), 8, 10)
	w.director.AdjustOverbooking()
	assert.Equal(t, 0, overbookingSum(w))
}
