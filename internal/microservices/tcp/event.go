package tcp

import "time"

// EventType is the kind of subscriber lifecycle change.
type EventType string

const (
	EventSubscribed   EventType = "SUBSCRIBED"
	EventUnsubscribed EventType = "UNSUBSCRIBED"
)

// Reasons attached to EventUnsubscribed.
const (
	ReasonUnsubscribe    = "unsubscribe"     // peer sent Unsubscribe
	ReasonDisconnected   = "disconnected"    // EOF or reset
	ReasonProtocolError  = "protocol_error"  // framing or decoding failure
	ReasonReadError      = "read_error"      // any other read failure
	ReasonWriteFailed    = "write_failed"    // broadcast write failed
	ReasonRemoved        = "removed"         // RemoveClient
	ReasonServerShutdown = "server_shutdown" // Shutdown
)

// Event is a subscriber lifecycle notification.
type Event struct {
	Type       EventType `json:"type"`
	Name       string    `json:"name"`
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// EventListener receives lifecycle events. It runs on the goroutine that
// caused the change and must not block.
type EventListener func(Event)
