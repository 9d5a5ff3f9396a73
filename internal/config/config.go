package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. The load fails on an
// unreadable file and on the out-of-range values Validate checks; a value of
// the wrong type is not rejected and reads as the type's zero value.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName("traffic_extension.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return Validate()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.aiPerPlayerTargetCount", 10)
	viper.SetDefault("ai.trafficDensity", 1.0)
	viper.SetDefault("ai.maxAiTargetCount", 300)
	viper.SetDefault("ai.aiBehaviorUpdateIntervalMs", 500)
	viper.SetDefault("ai.minSpawnDistancePoints", 100)
	viper.SetDefault("ai.maxSpawnDistancePoints", 400)
	viper.SetDefault("ai.playerRadiusMeters", 200.0)
	viper.SetDefault("ai.playerPositionOffsetMeters", 100.0)
	viper.SetDefault("ai.maxPlayerDistanceToAiSplineMeters", 60.0)
	viper.SetDefault("ai.spawnSafetyDistanceToPlayerMeters", 100.0)
	viper.SetDefault("ai.playerAfkTimeoutSeconds", 10)
	viper.SetDefault("ai.twoWayTraffic", false)
	viper.SetDefault("ai.wrongWayTraffic", false)
	viper.SetDefault("ai.prioritizePlayerTraffic", true)
	viper.SetDefault("ai.sameDirectionTrafficProbability", 0.8)
	viper.SetDefault("ai.laneWidthMeters", 3.0)
	viper.SetDefault("ai.spawnProtectionMs", 4000)
	viper.SetDefault("ai.stateSafetyDistanceMeters", 20.0)
	viper.SetDefault("ai.minStateHeadwayMeters", 20.0)
	viper.SetDefault("ai.defaultMaxSpeedMs", 30.0)
	viper.SetDefault("ai.debug", false)

	viper.SetDefault("automod.enableClientMessages", true)
	viper.SetDefault("automod.noLights.enabled", false)
	viper.SetDefault("automod.noLights.durationSeconds", 60)
	viper.SetDefault("automod.noLights.pitsBeforeKick", 2)
	viper.SetDefault("automod.noLights.minimumSpeedMs", 5.0)
	viper.SetDefault("automod.wrongWay.enabled", false)
	viper.SetDefault("automod.wrongWay.durationSeconds", 20)
	viper.SetDefault("automod.wrongWay.pitsBeforeKick", 2)
	viper.SetDefault("automod.wrongWay.minimumSpeedMs", 5.0)
	viper.SetDefault("automod.blockingRoad.enabled", false)
	viper.SetDefault("automod.blockingRoad.durationSeconds", 30)
	viper.SetDefault("automod.blockingRoad.pitsBeforeKick", 2)
	viper.SetDefault("automod.blockingRoad.maximumSpeedMs", 1.0)

	viper.SetDefault("db.enabled", true)
	viper.SetDefault("db.host", "")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "traffic")
	viper.SetDefault("db.localPath", "./traffic_audit.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "traffic-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("debugStream.enabled", false)
	viper.SetDefault("debugStream.listenAddress", "localhost:9611")

	viper.SetDefault("server.trackFile", "./track.json")
	viper.SetDefault("server.aiSlots", 10)
	viper.SetDefault("server.playerSlots", 8)
	viper.SetDefault("server.sessionName", "Traffic")

	viper.SetDefault("weather.trackGrip", 0.98)
	viper.SetDefault("weather.sunAltitudeDeg", 45.0)
}

// Validate checks cross-field constraints of the loaded values.
func Validate() error {
	if p := viper.GetFloat64("ai.sameDirectionTrafficProbability"); p < 0 || p > 1 {
		return fmt.Errorf("ai.sameDirectionTrafficProbability must be in [0,1], got %v", p)
	}
	if d := viper.GetFloat64("ai.trafficDensity"); d < 0 {
		return fmt.Errorf("ai.trafficDensity must not be negative, got %v", d)
	}
	minP := viper.GetInt("ai.minSpawnDistancePoints")
	maxP := viper.GetInt("ai.maxSpawnDistancePoints")
	if minP <= 0 || maxP <= minP {
		return fmt.Errorf("spawn distance range invalid: min=%d max=%d", minP, maxP)
	}
	if v := viper.GetInt("ai.aiBehaviorUpdateIntervalMs"); v < 50 {
		return fmt.Errorf("ai.aiBehaviorUpdateIntervalMs too small: %d", v)
	}
	if w := viper.GetFloat64("ai.laneWidthMeters"); w <= 0 {
		return fmt.Errorf("ai.laneWidthMeters must be positive, got %v", w)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Ai builds the typed AI director parameters from the loaded values.
// Distances configured in meters are squared once here so the hot loops
// never do it.
func Ai() AiConfig {
	playerRadius := viper.GetFloat64("ai.playerRadiusMeters")
	maxSplineDist := viper.GetFloat64("ai.maxPlayerDistanceToAiSplineMeters")
	spawnSafety := viper.GetFloat64("ai.spawnSafetyDistanceToPlayerMeters")
	stateSafety := viper.GetFloat64("ai.stateSafetyDistanceMeters")

	return AiConfig{
		Enabled:                         viper.GetBool("ai.enabled"),
		AiPerPlayerTargetCount:          viper.GetInt("ai.aiPerPlayerTargetCount"),
		TrafficDensity:                  viper.GetFloat64("ai.trafficDensity"),
		MaxAiTargetCount:                viper.GetInt("ai.maxAiTargetCount"),
		BehaviorUpdateInterval:          time.Duration(viper.GetInt("ai.aiBehaviorUpdateIntervalMs")) * time.Millisecond,
		MinSpawnDistancePoints:          viper.GetInt("ai.minSpawnDistancePoints"),
		MaxSpawnDistancePoints:          viper.GetInt("ai.maxSpawnDistancePoints"),
		PlayerRadiusSq:                  playerRadius * playerRadius,
		PlayerPositionOffsetMeters:      viper.GetFloat64("ai.playerPositionOffsetMeters"),
		MaxPlayerDistanceToAiSplineSq:   maxSplineDist * maxSplineDist,
		SpawnSafetyDistanceToPlayerSq:   spawnSafety * spawnSafety,
		PlayerAfkTimeout:                time.Duration(viper.GetInt("ai.playerAfkTimeoutSeconds")) * time.Second,
		TwoWayTraffic:                   viper.GetBool("ai.twoWayTraffic"),
		WrongWayTraffic:                 viper.GetBool("ai.wrongWayTraffic"),
		PrioritizePlayerTraffic:         viper.GetBool("ai.prioritizePlayerTraffic"),
		SameDirectionTrafficProbability: viper.GetFloat64("ai.sameDirectionTrafficProbability"),
		LaneWidthMeters:                 viper.GetFloat64("ai.laneWidthMeters"),
		SpawnProtectionMs:               viper.GetInt64("ai.spawnProtectionMs"),
		StateSafetyDistanceSq:           stateSafety * stateSafety,
		MinStateHeadwayMeters:           viper.GetFloat64("ai.minStateHeadwayMeters"),
		DefaultMaxSpeedMs:               viper.GetFloat64("ai.defaultMaxSpeedMs"),
		Debug:                           viper.GetBool("ai.debug"),
	}
}

// AutoMod builds the typed auto-moderation parameters from the loaded
// values.
func AutoMod() AutoModConfig {
	violation := func(prefix string, speedKey string) ViolationConfig {
		speed := viper.GetFloat64(prefix + "." + speedKey)
		return ViolationConfig{
			Enabled:         viper.GetBool(prefix + ".enabled"),
			DurationSeconds: viper.GetInt(prefix + ".durationSeconds"),
			PitsBeforeKick:  viper.GetInt(prefix + ".pitsBeforeKick"),
			SpeedThresholdSq: speed * speed,
		}
	}
	return AutoModConfig{
		EnableClientMessages: viper.GetBool("automod.enableClientMessages"),
		NoLights:             violation("automod.noLights", "minimumSpeedMs"),
		WrongWay:             violation("automod.wrongWay", "minimumSpeedMs"),
		BlockingRoad:         violation("automod.blockingRoad", "maximumSpeedMs"),
	}
}
