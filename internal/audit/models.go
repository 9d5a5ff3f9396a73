package audit

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Track is the circuit the audit rows belong to. Location is the track's
// WGS84 reference converted to web-mercator; Lanes holds the traffic
// spline's lane polylines. Both are stored as WKB.
type Track struct {
	gorm.Model
	Name     string `gorm:"size:127;index"`
	Location geom.Point
	Lanes    geom.MultiLineString
}

func (*Track) TableName() string {
	return "tracks"
}

// ViolationEvent is one moderation action: a warning, a pit teleport, or a
// kick.
type ViolationEvent struct {
	gorm.Model
	TrackID    uint
	Time       time.Time `gorm:"index:idx_violation_time"`
	SessionID  uint8
	PlayerName string `gorm:"size:64"`
	PlayerGUID string `gorm:"size:64;index"`
	Violation  string `gorm:"size:32"`
	Action     string `gorm:"size:16"`
	Seconds    int
	Details    datatypes.JSON
}

func (*ViolationEvent) TableName() string {
	return "violation_events"
}

// ConnectionEvent is one occupancy transition on a slot.
type ConnectionEvent struct {
	gorm.Model
	TrackID    uint
	Time       time.Time `gorm:"index:idx_connection_time"`
	SessionID  uint8
	PlayerName string `gorm:"size:64"`
	PlayerGUID string `gorm:"size:64;index"`
	Event      string `gorm:"size:24"`
}

func (*ConnectionEvent) TableName() string {
	return "connection_events"
}
