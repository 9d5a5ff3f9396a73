package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/pkg/core"
)

// twoWayGraph builds two opposing lanes 4 m apart, 10 m point spacing.
func twoWayGraph(t *testing.T, n int) *spline.Spline {
	t.Helper()
	forward := spline.LaneFile{}
	for i := 0; i < n; i++ {
		forward.Points = append(forward.Points, [3]float64{float64(i) * 10, 0, 0})
	}
	reverse := spline.LaneFile{}
	for i := n - 1; i >= 0; i-- {
		reverse.Points = append(reverse.Points, [3]float64{float64(i) * 10, 0, 4})
	}
	s, err := spline.FromLanes([]spline.LaneFile{forward, reverse}, nil, 3.0)
	require.NoError(t, err)
	return s
}

// S4: with player prioritization on a two-way track, most selected lanes
// match the player's direction class.
func TestLanePriority(t *testing.T) {
	cfg := testConfig()
	cfg.TwoWayTraffic = true
	cfg.PrioritizePlayerTraffic = true
	cfg.SameDirectionTrafficProbability = 0.8

	graph := twoWayGraph(t, 200)
	w := newWorld(t, cfg, graph, 2, 10)

	player := w.connectPlayer(t, 0, core.Position3D{X: 500, Z: 0}, core.Position3D{X: 10}, 0)
	playerID, _ := graph.WorldToSpline(player.Status.Position)
	require.NotEqual(t, spline.NoPoint, playerID)

	candidate, _ := graph.WorldToSpline(core.Position3D{X: 700, Z: 0})
	require.Len(t, graph.Lanes(candidate), 2)

	const trials = 1000
	same := 0
	for i := 0; i < trials; i++ {
		lane := w.director.selectLaneForPlayer(graph, candidate, player)
		if graph.IsSameDirection(playerID, lane) {
			same++
		}
	}

	assert.GreaterOrEqual(t, same, trials*75/100,
		"same-direction lane share below the configured preference")
	assert.Less(t, same, trials, "opposite lanes must still appear")
}

// Without prioritization lane choice is uniform.
func TestLaneSelection_RandomFallback(t *testing.T) {
	cfg := testConfig()
	cfg.TwoWayTraffic = true
	cfg.PrioritizePlayerTraffic = false

	graph := twoWayGraph(t, 200)
	w := newWorld(t, cfg, graph, 2, 10)

	player := w.connectPlayer(t, 0, core.Position3D{X: 500, Z: 0}, core.Position3D{X: 10}, 0)
	playerID, _ := graph.WorldToSpline(player.Status.Position)

	candidate, _ := graph.WorldToSpline(core.Position3D{X: 700, Z: 0})

	const trials = 2000
	same := 0
	for i := 0; i < trials; i++ {
		lane := w.director.selectLaneForPlayer(graph, candidate, player)
		if graph.IsSameDirection(playerID, lane) {
			same++
		}
	}

	// roughly uniform over two lanes
	assert.InDelta(t, trials/2, same, trials/10)
}

// Spawn-point search fails for players too far off the spline.
func TestFindSpawnPoint_OffSpline(t *testing.T) {
	cfg := testConfig()
	graph := straightGraph(t, 100)
	w := newWorld(t, cfg, graph, 2, 10)

	player := w.connectPlayer(t, 0, core.Position3D{X: 500, Z: 100}, core.Position3D{X: 10}, 0)

	_, ok := w.director.findSpawnPoint(graph, player)
	assert.False(t, ok)
}

// The search direction follows the player's travel direction.
func TestFindSpawnPoint_FollowsTravelDirection(t *testing.T) {
	cfg := testConfig()
	cfg.TwoWayTraffic = true
	graph := straightGraph(t, 300)
	w := newWorld(t, cfg, graph, 2, 10)

	player := w.connectPlayer(t, 0, core.Position3D{X: 1500}, core.Position3D{X: -10}, 0)

	for i := 0; i < 20; i++ {
		id, ok := w.director.findSpawnPoint(graph, player)
		require.True(t, ok)
		assert.Less(t, graph.Point(id).Position.X, 1500.0,
			"spawn must land behind a reversing player")
	}
}
