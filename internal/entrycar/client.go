package entrycar

// Client is a connected human driver occupying a slot.
type Client struct {
	Name      string
	Guid      string
	SessionID uint8

	// HasSentFirstUpdate gates whether the slot counts as player-live:
	// until the first position update arrives the car has no meaningful
	// status.
	HasSentFirstUpdate bool

	// IsAdministrator exempts the client from auto-moderation.
	IsAdministrator bool
}
