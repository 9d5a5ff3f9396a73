// Package audit persists moderation actions and connection transitions.
// Rows are queued by the tick goroutines and flushed by a background
// writer, so the database can never block a director.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/apexsim/extension/internal/queue"
)

// flushInterval is the background writer cadence.
const flushInterval = time.Second

// Recorder buffers audit rows and writes them in the background. A recorder
// that failed to connect is inert: Record* calls become no-ops.
type Recorder struct {
	db      *gorm.DB
	logger  *slog.Logger
	trackID uint

	rows *queue.Queue[any]

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// NewRecorder creates a recorder; call Connect before Start.
func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{
		logger: log,
		rows:   queue.New[any](),
	}
}

// Connect opens the audit database: Postgres when a host is configured,
// the local SQLite file otherwise. The schema is migrated in place.
func (r *Recorder) Connect() error {
	if !viper.GetBool("db.enabled") {
		return fmt.Errorf("db.enabled is false")
	}

	var err error
	if host := viper.GetString("db.host"); host != "" {
		dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
			host,
			viper.GetString("db.port"),
			viper.GetString("db.username"),
			viper.GetString("db.password"),
			viper.GetString("db.database"),
		)
		r.db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			r.logger.Error("Failed to connect to Postgres, falling back to SQLite", "error", err)
			r.db = nil
		}
	}
	if r.db == nil {
		r.db, err = gorm.Open(sqlite.Open(viper.GetString("db.localPath")), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("opening local audit db: %w", err)
		}
	}

	if err := r.db.AutoMigrate(&Track{}, &ViolationEvent{}, &ConnectionEvent{}); err != nil {
		return fmt.Errorf("migrating audit schema: %w", err)
	}

	return nil
}

// Valid reports whether the recorder has a database.
func (r *Recorder) Valid() bool {
	return r.db != nil
}

// StartTrack registers the current track and scopes subsequent rows to it.
// The lane polylines land on the track row as one WKB MultiLineString.
func (r *Recorder) StartTrack(name string, location geom.Point, lanes []geom.LineString) error {
	if r.db == nil {
		return nil
	}
	track := Track{Name: name, Location: location, Lanes: geom.NewMultiLineString(lanes)}
	if err := r.db.Where("name = ?", name).FirstOrCreate(&track).Error; err != nil {
		return fmt.Errorf("registering track %s: %w", name, err)
	}
	r.trackID = track.ID
	return nil
}

// RecordViolation queues one moderation action. details carries the
// triggering metrics (speed, graph position) and is stored as JSON.
func (r *Recorder) RecordViolation(sessionID uint8, playerName, playerGuid, violation, action string, seconds int, details map[string]any) {
	if r.db == nil {
		return
	}
	var detailsJSON datatypes.JSON
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			r.logger.Error("violation details marshal failed", "error", err)
		} else {
			detailsJSON = datatypes.JSON(raw)
		}
	}
	r.rows.Push(&ViolationEvent{
		TrackID:    r.trackID,
		Time:       time.Now(),
		SessionID:  sessionID,
		PlayerName: playerName,
		PlayerGUID: playerGuid,
		Violation:  violation,
		Action:     action,
		Seconds:    seconds,
		Details:    detailsJSON,
	})
}

// RecordConnection queues one occupancy transition.
func (r *Recorder) RecordConnection(sessionID uint8, playerName, playerGuid, event string) {
	if r.db == nil {
		return
	}
	r.rows.Push(&ConnectionEvent{
		TrackID:    r.trackID,
		Time:       time.Now(),
		SessionID:  sessionID,
		PlayerName: playerName,
		PlayerGUID: playerGuid,
		Event:      event,
	})
}

// Start launches the background writer.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.isRunning || r.db == nil {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.stopChan = make(chan struct{})
	stop := r.stopChan
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				r.flush()
				return
			case <-ticker.C:
				r.flush()
			}
		}
	}()
}

// Stop flushes pending rows and stops the writer.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		close(r.stopChan)
		r.isRunning = false
	}
}

// Pending returns the number of queued, unwritten rows.
func (r *Recorder) Pending() int {
	return r.rows.Len()
}

func (r *Recorder) flush() {
	rows := r.rows.GetAndEmpty()
	for _, row := range rows {
		if err := r.db.Create(row).Error; err != nil {
			r.logger.Error("audit row write failed", "error", err)
		}
	}
}
