package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "traffic_extension.cfg.json"), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"ai": { "trafficDensity": 0.5, "twoWayTraffic": true },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 0.5, viper.GetFloat64("ai.trafficDensity"))
	assert.True(t, viper.GetBool("ai.twoWayTraffic"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, 10, viper.GetInt("ai.aiPerPlayerTargetCount"))
	assert.Equal(t, 1.0, viper.GetFloat64("ai.trafficDensity"))
	assert.Equal(t, 300, viper.GetInt("ai.maxAiTargetCount"))
	assert.Equal(t, 500, viper.GetInt("ai.aiBehaviorUpdateIntervalMs"))
	assert.Equal(t, 0.8, viper.GetFloat64("ai.sameDirectionTrafficProbability"))
	assert.False(t, viper.GetBool("ai.debug"))
	assert.True(t, viper.GetBool("automod.enableClientMessages"))
	assert.False(t, viper.GetBool("automod.wrongWay.enabled"))
	assert.Equal(t, 2, viper.GetInt("automod.wrongWay.pitsBeforeKick"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.False(t, viper.GetBool("influx.enabled"))
	assert.False(t, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:9611", viper.GetString("debugStream.listenAddress"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_MalformedScalarIsStrict(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{ "ai": { "sameDirectionTrafficProbability": 1.7 } }`)

	err := Load(dir)
	require.Error(t, err)
}

func TestValidate_SpawnDistanceRange(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{ "ai": { "minSpawnDistancePoints": 50, "maxSpawnDistancePoints": 40 } }`)

	err := Load(dir)
	require.Error(t, err)
}

func TestAi_TypedBuilder(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"ai": {
			"playerRadiusMeters": 100,
			"spawnSafetyDistanceToPlayerMeters": 30,
			"playerAfkTimeoutSeconds": 15,
			"aiBehaviorUpdateIntervalMs": 750
		}
	}`)
	require.NoError(t, Load(dir))

	cfg := Ai()
	assert.Equal(t, 10000.0, cfg.PlayerRadiusSq)
	assert.Equal(t, 900.0, cfg.SpawnSafetyDistanceToPlayerSq)
	assert.Equal(t, 15*time.Second, cfg.PlayerAfkTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.BehaviorUpdateInterval)
	assert.True(t, cfg.Enabled)
}

func TestAutoMod_TypedBuilder(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"automod": {
			"noLights": { "enabled": true, "durationSeconds": 45, "minimumSpeedMs": 4 },
			"blockingRoad": { "enabled": true, "maximumSpeedMs": 2 }
		}
	}`)
	require.NoError(t, Load(dir))

	cfg := AutoMod()
	assert.True(t, cfg.NoLights.Enabled)
	assert.Equal(t, 45, cfg.NoLights.DurationSeconds)
	assert.Equal(t, 16.0, cfg.NoLights.SpeedThresholdSq)
	assert.True(t, cfg.BlockingRoad.Enabled)
	assert.Equal(t, 4.0, cfg.BlockingRoad.SpeedThresholdSq)
	assert.False(t, cfg.WrongWay.Enabled)
}
