package core

// Packet is implemented by every outbound wire packet the directors emit.
// Framing and serialization live in the network layer; the directors only
// build payloads.
type Packet interface {
	PacketName() string
}

// ServerSessionID is the session id chat messages from the server carry.
const ServerSessionID uint8 = 255

// CurrentSessionUpdate re-sends the session header to a single client.
// Auto-moderation uses it to teleport a car back to the pits: receiving the
// packet makes the client reset the car to its grid slot.
type CurrentSessionUpdate struct {
	Session   SessionConfiguration
	Grid      []uint8
	TrackGrip float32
	StartTime int64
}

func (CurrentSessionUpdate) PacketName() string { return "CurrentSessionUpdate" }

// ChatMessage is a chat line attributed to a session id. Warnings and
// pit notifications use ServerSessionID.
type ChatMessage struct {
	SessionID uint8
	Message   string
}

func (ChatMessage) PacketName() string { return "ChatMessage" }

// ViolationFlags is the bitfield sent to the client-side script.
type ViolationFlags uint8

const (
	ViolationNoLights  ViolationFlags = 1 << 0
	ViolationWrongWay  ViolationFlags = 1 << 1
	ViolationNoParking ViolationFlags = 1 << 2
)

// AutoModerationFlags tells the client script which violation overlays to
// show. Emitted only on ticks where the bitfield changed.
type AutoModerationFlags struct {
	Flags ViolationFlags
}

func (AutoModerationFlags) PacketName() string { return "AutoModerationFlags" }

// AiDebugCarsPerPacket is the fixed slot count of one AiDebugPacket.
const AiDebugCarsPerPacket = 10

// AiDebugPadSessionID fills unused slots of an AiDebugPacket.
const AiDebugPadSessionID uint8 = 0xFF

// AiDebugPacket carries per-slot AI telemetry for the debug overlay.
// Speeds are km/h packed to 8 bits, obstacle distances centimetres packed
// to 16 bits.
type AiDebugPacket struct {
	SessionIDs         [AiDebugCarsPerPacket]uint8
	ClosestAiObstacles [AiDebugCarsPerPacket]int16
	CurrentSpeeds      [AiDebugCarsPerPacket]uint8
	MaxSpeeds          [AiDebugCarsPerPacket]uint8
	TargetSpeeds       [AiDebugCarsPerPacket]uint8
}

func (AiDebugPacket) PacketName() string { return "AiDebugPacket" }
