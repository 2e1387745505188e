package relay

import "time"

// Envelope is a persisted chat message as the relay sees it. The durable
// store assigns ID before the envelope ever reaches the relay; the relay
// treats the whole value as opaque cargo.
type Envelope struct {
	ID       int64
	Room     string
	SenderID int64
	Sender   string
	Text     string
	Media    string
	SentAt   time.Time
}
