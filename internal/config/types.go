package config

import "time"

// AiConfig holds the AI director parameters. Squared fields are precomputed
// from their meter-valued config keys.
type AiConfig struct {
	Enabled                         bool
	AiPerPlayerTargetCount          int
	TrafficDensity                  float64
	MaxAiTargetCount                int
	BehaviorUpdateInterval          time.Duration
	MinSpawnDistancePoints          int
	MaxSpawnDistancePoints          int
	PlayerRadiusSq                  float64
	PlayerPositionOffsetMeters      float64
	MaxPlayerDistanceToAiSplineSq   float64
	SpawnSafetyDistanceToPlayerSq   float64
	PlayerAfkTimeout                time.Duration
	TwoWayTraffic                   bool
	WrongWayTraffic                 bool
	PrioritizePlayerTraffic         bool
	SameDirectionTrafficProbability float64
	LaneWidthMeters                 float64
	SpawnProtectionMs               int64
	StateSafetyDistanceSq           float64
	MinStateHeadwayMeters           float64
	DefaultMaxSpeedMs               float64
	Debug                           bool
}

// ViolationConfig holds one violation's thresholds. SpeedThresholdSq is a
// minimum for no-lights/wrong-way and a maximum for blocking-road.
type ViolationConfig struct {
	Enabled          bool
	DurationSeconds  int
	PitsBeforeKick   int
	SpeedThresholdSq float64
}

// AutoModConfig holds the auto-moderation parameters.
type AutoModConfig struct {
	EnableClientMessages bool
	NoLights             ViolationConfig
	WrongWay             ViolationConfig
	BlockingRoad         ViolationConfig
}
