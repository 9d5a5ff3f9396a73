// Package session holds the live session clock and weather state the
// directors read each tick.
package session

import (
	"sync"
	"time"

	"github.com/apexsim/extension/pkg/core"
)

// Manager tracks the current session and the monotonic server clock.
type Manager struct {
	start time.Time

	mu      sync.RWMutex
	current *core.SessionState
}

// NewManager creates a manager whose server clock starts now.
func NewManager() *Manager {
	return &Manager{start: time.Now()}
}

// ServerTimeMs returns monotonic milliseconds since server start.
func (m *Manager) ServerTimeMs() int64 {
	return time.Since(m.start).Milliseconds()
}

// CurrentSession returns the live session state, nil before the first
// session starts.
func (m *Manager) CurrentSession() *core.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrentSession installs the live session state.
func (m *Manager) SetCurrentSession(s *core.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}
