package audit

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/extension/internal/geo"
)

func testLane(t *testing.T) geom.LineString {
	t.Helper()
	seq := geom.NewSequence([]float64{0, 0, 0, 10, 0, 0, 20, 0, 0}, geom.DimXYZ)
	ls, err := geom.NewLineString(seq)
	require.NoError(t, err)
	return ls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	t.Cleanup(viper.Reset)

	viper.Set("db.enabled", true)
	viper.Set("db.host", "")
	viper.Set("db.localPath", filepath.Join(t.TempDir(), "audit.db"))

	r := NewRecorder(discardLogger())
	require.NoError(t, r.Connect())
	return r
}

func TestRecorder_Disabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.enabled", false)

	r := NewRecorder(discardLogger())
	require.Error(t, r.Connect())
	assert.False(t, r.Valid())

	// inert recorder swallows records
	r.RecordViolation(1, "driver", "guid", "driving the wrong way", "warning", 0, nil)
	assert.Zero(t, r.Pending())
}

func TestRecorder_TrackRegistration(t *testing.T) {
	r := newTestRecorder(t)

	location, err := geo.TrackLocation3857(9.28, 45.62)
	require.NoError(t, err)
	lanes := []geom.LineString{testLane(t)}
	require.NoError(t, r.StartTrack("monza", location, lanes))

	// idempotent across restarts
	require.NoError(t, r.StartTrack("monza", location, lanes))

	var count int64
	require.NoError(t, r.db.Model(&Track{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// the lane geometry survives the WKB round trip
	var track Track
	require.NoError(t, r.db.Where("name = ?", "monza").First(&track).Error)
	assert.Equal(t, 1, track.Lanes.NumLineStrings())
}

func TestRecorder_ViolationFlush(t *testing.T) {
	r := newTestRecorder(t)

	details := map[string]any{"speedMs": 0.4, "splinePointId": 12}
	r.RecordViolation(3, "driver", "guid-3", "blocking the road", "pit", 31, details)
	r.RecordViolation(3, "driver", "guid-3", "blocking the road", "kick", 62, details)
	assert.Equal(t, 2, r.Pending())

	r.flush()
	assert.Zero(t, r.Pending())

	var rows []ViolationEvent
	require.NoError(t, r.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "pit", rows[0].Action)
	assert.Equal(t, "kick", rows[1].Action)
	assert.Equal(t, uint8(3), rows[0].SessionID)
	assert.Equal(t, 31, rows[0].Seconds)

	// the triggering metrics land in the JSON details column
	assert.Contains(t, string(rows[0].Details), `"speedMs":0.4`)
	assert.Contains(t, string(rows[0].Details), `"splinePointId":12`)
}

func TestRecorder_ConnectionFlush(t *testing.T) {
	r := newTestRecorder(t)

	r.RecordConnection(5, "driver", "guid-5", ":CLIENT:CONNECTED:")
	r.flush()

	var rows []ConnectionEvent
	require.NoError(t, r.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, ":CLIENT:CONNECTED:", rows[0].Event)
}

func TestRecorder_BackgroundWriter(t *testing.T) {
	r := newTestRecorder(t)
	r.Start()
	defer r.Stop()

	r.RecordViolation(1, "driver", "guid", "driving without lights", "warning", 0, map[string]any{"speedMs": 22.5})

	require.Eventually(t, func() bool {
		var count int64
		if err := r.db.Model(&ViolationEvent{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 1
	}, 5*time.Second, 50*time.Millisecond)
}
