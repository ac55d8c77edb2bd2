package channel

import (
	"fmt"
	"sync"
	"time"
)

// Loopback is an in-memory Channel backed by two message queues. It is the
// reference implementation of the contract, used in tests and local runs
// where no hardware is attached.
//
// A single Loopback echoes its own sends back to itself. LoopbackPair wires
// two of them crosswise so that one end's Send feeds the other end's
// Receive, like a null-modem cable.
type Loopback struct {
	alias string

	mu   sync.Mutex
	open bool
	// in receives what the peer (or, unlinked, this channel itself) sends.
	in chan Message
	// peer is the queue our sends are delivered to.
	peer chan Message
}

const loopbackDepth = 64

// NewLoopback creates a standalone loopback channel that echoes sends back
// to its own receive queue.
func NewLoopback(alias string) *Loopback {
	lb := &Loopback{
		alias: alias,
		in:    make(chan Message, loopbackDepth),
	}
	lb.peer = lb.in
	return lb
}

// LoopbackPair creates two linked loopback channels: what one sends, the
// other receives.
func LoopbackPair(aliasA, aliasB string) (*Loopback, *Loopback) {
	a := &Loopback{alias: aliasA, in: make(chan Message, loopbackDepth)}
	b := &Loopback{alias: aliasB, in: make(chan Message, loopbackDepth)}
	a.peer = b.in
	b.peer = a.in
	return a, b
}

// Alias returns the configured alias.
func (l *Loopback) Alias() string {
	return l.alias
}

// Open marks the channel usable. Opening twice is an error.
func (l *Loopback) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return fmt.Errorf("loopback %q: already open", l.alias)
	}
	l.open = true
	return nil
}

// Close marks the channel unusable and drains pending messages so a
// reopen starts clean. Closing twice is a no-op.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	for {
		select {
		case <-l.in:
		default:
			return nil
		}
	}
}

// Send delivers the payload to the linked receive queue. It never blocks:
// a full queue drops the oldest pending message first, matching the
// behavior of a bounded hardware FIFO.
func (l *Loopback) Send(payload []byte) error {
	l.mu.Lock()
	open := l.open
	l.mu.Unlock()
	if !open {
		return fmt.Errorf("loopback %q: %w", l.alias, ErrNotOpen)
	}

	msg := Message{Payload: append([]byte(nil), payload...)}
	for {
		select {
		case l.peer <- msg:
			return nil
		default:
			// Queue full: drop the oldest and retry.
			select {
			case <-l.peer:
			default:
			}
		}
	}
}

// Receive waits up to timeout for one message. A zero Message signals that
// nothing arrived in time.
func (l *Loopback) Receive(timeout time.Duration) (Message, error) {
	l.mu.Lock()
	open := l.open
	l.mu.Unlock()
	if !open {
		return Message{}, fmt.Errorf("loopback %q: %w", l.alias, ErrNotOpen)
	}

	if timeout <= 0 {
		select {
		case msg := <-l.in:
			return msg, nil
		default:
			return Message{}, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-l.in:
		return msg, nil
	case <-timer.C:
		return Message{}, nil
	}
}
