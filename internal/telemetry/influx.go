package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// PerformanceBucket receives the director's per-tick samples.
const PerformanceBucket = "traffic_performance"

// InfluxManager handles InfluxDB connections and writes. When the server is
// unreachable at Connect the samples land in a gzip-compressed local backup
// instead; write failures after a successful Connect do not go to the backup.
type InfluxManager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string
}

// NewInfluxManager creates a new InfluxDB manager.
func NewInfluxManager(log zerolog.Logger, backupPath string) *InfluxManager {
	return &InfluxManager{
		IsValid:    false,
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *InfluxManager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")
			f, ferr := os.OpenFile(m.BackupPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if ferr != nil {
				return fmt.Errorf("opening influx backup file: %w", ferr)
			}
			m.BackupWriter = gzip.NewWriter(f)
		}
		if err != nil {
			return fmt.Errorf("pinging influxdb: %w", err)
		}
		return errors.New("influxdb not running")
	}

	m.Writer = m.Client.WriteAPI(viper.GetString("influx.org"), PerformanceBucket)
	m.IsValid = true
	m.Logger.Info().Msg("Connected to InfluxDB")
	return nil
}

// WriteTickPoint records one director tick sample.
func (m *InfluxManager) WriteTickPoint(durationMs float64, aiCount, spawned, despawned int) {
	now := time.Now()
	if !m.IsValid {
		if m.BackupWriter != nil {
			line := fmt.Sprintf(
				"director_tick duration_ms=%f,ai_count=%di,spawned=%di,despawned=%di %d\n",
				durationMs, aiCount, spawned, despawned, now.UnixNano(),
			)
			if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
				m.Logger.Error().Err(err).Msg("Failed to write tick point to backup")
			}
		}
		return
	}

	p := influxdb2.NewPointWithMeasurement("director_tick").
		AddField("duration_ms", durationMs).
		AddField("ai_count", aiCount).
		AddField("spawned", spawned).
		AddField("despawned", despawned).
		SetTime(now)
	m.Writer.WritePoint(p)
}

// Close flushes and releases the client or the backup writer.
func (m *InfluxManager) Close() {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			m.Logger.Error().Err(err).Msg("Failed to close influx backup writer")
		}
	}
}
