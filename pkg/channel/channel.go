package channel

import (
	"errors"
	"time"
)

// ErrNotOpen is returned by Send and Receive when the channel is closed.
// Use errors.Is to detect it through wrapping.
var ErrNotOpen = errors.New("channel is not open")

// Message is one unit of data received from a channel.
// A zero Message (nil Payload) means "no data within the timeout" and is
// the normal outcome of polling an idle medium.
type Message struct {
	Payload []byte
	// Meta carries transport-specific extras (remote address, CAN id, ...).
	// May be nil.
	Meta map[string]string
}

// Empty reports whether the message carries no payload, i.e. the receive
// timed out without data.
func (m Message) Empty() bool {
	return m.Payload == nil
}

// Channel is the transport contract consumed by auxiliary workers and
// implemented by connectors.
//
// Implementations must tolerate the open/close/open cycle: a closed channel
// reopened later behaves exactly like a freshly constructed one. Send and
// Receive must fail with ErrNotOpen when the channel is closed. Receive
// returns a zero Message on ordinary absence of data; it returns an error
// only on genuine transport failure.
type Channel interface {
	// Open acquires the underlying medium. Opening an already-open
	// channel is an error.
	Open() error

	// Close releases the medium. Closing an already-closed channel is a
	// no-op returning nil.
	Close() error

	// Send transmits one payload. Blocking is permitted.
	Send(payload []byte) error

	// Receive waits up to timeout for one inbound message.
	Receive(timeout time.Duration) (Message, error)
}

// Aliased is implemented by channels that know their configured alias.
// Used for logging only.
type Aliased interface {
	Alias() string
}
