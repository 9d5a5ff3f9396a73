package session

import (
	"sync"

	"github.com/apexsim/extension/pkg/core"
)

// WeatherManager exposes the slice of the weather model the directors
// consume: track grip and the sun position. The weather simulation itself
// is an external collaborator.
type WeatherManager struct {
	mu        sync.RWMutex
	trackGrip float32
	sun       *core.SunPosition
}

// NewWeatherManager creates a manager with full grip and no sun data.
func NewWeatherManager() *WeatherManager {
	return &WeatherManager{trackGrip: 1.0}
}

// TrackGrip returns the current track grip in [0,1].
func (w *WeatherManager) TrackGrip() float32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trackGrip
}

// SetTrackGrip updates the current track grip.
func (w *WeatherManager) SetTrackGrip(grip float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trackGrip = grip
}

// SunPosition returns the current solar position, nil when the track has no
// geographic reference to derive one.
func (w *WeatherManager) SunPosition() *core.SunPosition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sun
}

// SetSunPosition updates the solar position.
func (w *WeatherManager) SetSunPosition(sun *core.SunPosition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sun = sun
}
