package entrycar

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/apexsim/extension/internal/dispatcher"
	"github.com/apexsim/extension/internal/geo"
	"github.com/apexsim/extension/pkg/core"
)

// Event names raised through the dispatcher. The directors subscribe to
// re-tune overbooking; the audit recorder subscribes for the trail.
const (
	EventClientConnected    = ":CLIENT:CONNECTED:"
	EventChecksumPassed     = ":CLIENT:CHECKSUM:"
	EventClientDisconnected = ":CLIENT:DISCONNECTED:"
	EventCollisionWithAi    = ":COLLISION:AI:"
)

// collisionReactionMaxDistance bounds which struck AI reacts to a client
// collision.
const collisionReactionMaxDistance = 25.0

// ClientEvent is the payload of connection events.
type ClientEvent struct {
	SessionID uint8
	Client    *Client
}

// CollisionEvent is the payload of EventCollisionWithAi.
type CollisionEvent struct {
	SessionID       uint8
	TargetSessionID uint8
	DistanceMeters  float64
}

// PacketSink is the network layer surface the directors write through.
// Implementations serialize writes per client.
type PacketSink interface {
	SendPacket(sessionID uint8, p core.Packet) error
	BroadcastPacket(p core.Packet)
	Kick(client *Client, reason string) error
}

// Manager owns the slot table and the connected-client map, and translates
// connection transitions into occupancy changes plus dispatcher events.
type Manager struct {
	cars   []*EntryCar
	index  *SlowestStateIndex
	sink   PacketSink
	events *dispatcher.Dispatcher
	logger *slog.Logger

	mu        sync.RWMutex
	connected map[uint8]*Client
}

// NewManager creates a manager over a fixed slot table.
func NewManager(cars []*EntryCar, index *SlowestStateIndex, sink PacketSink, events *dispatcher.Dispatcher, logger *slog.Logger) *Manager {
	return &Manager{
		cars:      cars,
		index:     index,
		sink:      sink,
		events:    events,
		logger:    logger,
		connected: make(map[uint8]*Client),
	}
}

// EntryCars returns the slot table.
func (m *Manager) EntryCars() []*EntryCar {
	return m.cars
}

// Index returns the shared slowest-state index.
func (m *Manager) Index() *SlowestStateIndex {
	return m.index
}

// Car returns the slot with the given session id.
func (m *Manager) Car(sessionID uint8) (*EntryCar, error) {
	if int(sessionID) >= len(m.cars) {
		return nil, fmt.Errorf("no entry car with session id %d", sessionID)
	}
	return m.cars[sessionID], nil
}

// ConnectedClients returns a snapshot of the connected-client map.
func (m *Manager) ConnectedClients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.connected))
	for _, c := range m.connected {
		out = append(out, c)
	}
	return out
}

// ConnectedCount returns the number of connected clients.
func (m *Manager) ConnectedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connected)
}

// BroadcastPacket sends p to every connected client.
func (m *Manager) BroadcastPacket(p core.Packet) {
	m.sink.BroadcastPacket(p)
}

// SendPacket sends p to one client. Send failures are logged and swallowed;
// they never propagate into a tick.
func (m *Manager) SendPacket(sessionID uint8, p core.Packet) {
	if err := m.sink.SendPacket(sessionID, p); err != nil {
		m.logger.Error("packet send failed", "sessionId", sessionID, "packet", p.PacketName(), "error", err)
	}
}

// KickAsync kicks a client without blocking the caller. Transient failures
// in the network layer are logged and treated as completed.
func (m *Manager) KickAsync(client *Client, reason string) {
	go func() {
		if err := m.sink.Kick(client, reason); err != nil {
			m.logger.Error("kick failed", "client", client.Name, "reason", reason, "error", err)
		}
	}()
}

// OnClientConnected attaches a client to its slot.
func (m *Manager) OnClientConnected(client *Client) error {
	car, err := m.Car(client.SessionID)
	if err != nil {
		return err
	}
	car.SetClient(client, m.index)

	m.mu.Lock()
	m.connected[client.SessionID] = client
	m.mu.Unlock()

	m.dispatch(EventClientConnected, ClientEvent{SessionID: client.SessionID, Client: client})
	return nil
}

// OnChecksumPassed marks the client loaded: the slot becomes player-owned.
func (m *Manager) OnChecksumPassed(sessionID uint8) error {
	car, err := m.Car(sessionID)
	if err != nil {
		return err
	}
	car.SetAiControl(false, m.index)

	m.dispatch(EventChecksumPassed, ClientEvent{SessionID: sessionID, Client: car.Client()})
	return nil
}

// OnClientDisconnected detaches the client; slots with an AI mode flip back
// to AI control.
func (m *Manager) OnClientDisconnected(sessionID uint8) error {
	car, err := m.Car(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	client := m.connected[sessionID]
	delete(m.connected, sessionID)
	m.mu.Unlock()

	car.SetClient(nil, m.index)

	m.dispatch(EventClientDisconnected, ClientEvent{SessionID: sessionID, Client: client})
	return nil
}

// OnCollisionWithAi reacts to a client striking an AI car: when the target
// is close enough, the nearest AI identity of the struck slot is stopped
// after a random delay in [100, 500] ms.
func (m *Manager) OnCollisionWithAi(sessionID, targetSessionID uint8, distanceMeters float64) error {
	if distanceMeters > collisionReactionMaxDistance {
		return nil
	}
	playerCar, err := m.Car(sessionID)
	if err != nil {
		return err
	}
	targetCar, err := m.Car(targetSessionID)
	if err != nil {
		return err
	}

	var nearest *AiState
	nearestDistSq := 0.0
	for _, s := range targetCar.InitializedStates() {
		d := geo.DistanceSquared(playerCar.Status.Position, s.Status.Position)
		if nearest == nil || d < nearestDistSq {
			nearest = s
			nearestDistSq = d
		}
	}
	if nearest != nil {
		delay := time.Duration(100+rand.Intn(401)) * time.Millisecond
		nearest.ScheduleStopForCollision(delay)
	}

	m.dispatch(EventCollisionWithAi, CollisionEvent{
		SessionID:       sessionID,
		TargetSessionID: targetSessionID,
		DistanceMeters:  distanceMeters,
	})
	return nil
}

func (m *Manager) dispatch(name string, payload any) {
	if m.events == nil || !m.events.HasHandler(name) {
		return
	}
	if err := m.events.Dispatch(dispatcher.Event{Name: name, Payload: payload, Timestamp: time.Now()}); err != nil {
		m.logger.Error("event dispatch failed", "event", name, "error", err)
	}
}
