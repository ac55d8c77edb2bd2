package proxy

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/rig/pkg/channel"
)

const endpointBufferDepth = 64

// Endpoint is the proxy channel handed to one downstream auxiliary. It
// implements the channel contract but never touches hardware: Open
// subscribes it to the proxy's dispatch (opening the physical medium if it
// is the first), Send forwards through the proxy's serialized transmit
// path, Receive pops from a private buffer fed by the dispatch loop.
type Endpoint struct {
	alias string
	proxy *Proxy

	// mu guards open/in only. It is never held across calls into the
	// proxy, whose dispatch loop calls back into push.
	mu   sync.Mutex
	open bool
	in   chan channel.Message
}

var _ channel.Channel = (*Endpoint)(nil)

// Alias returns the downstream auxiliary alias this endpoint serves.
func (e *Endpoint) Alias() string {
	return e.alias
}

// Open subscribes the endpoint. The buffer starts empty: messages
// dispatched while the endpoint was closed are gone, not replayed.
func (e *Endpoint) Open() error {
	e.mu.Lock()
	if e.open {
		e.mu.Unlock()
		return fmt.Errorf("proxy endpoint %q: already open", e.alias)
	}
	// Arm the buffer before subscribing so no dispatched message falls
	// into the gap.
	e.in = make(chan channel.Message, endpointBufferDepth)
	e.mu.Unlock()

	if err := e.proxy.subscribe(e); err != nil {
		e.mu.Lock()
		e.in = nil
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.open = true
	e.mu.Unlock()
	return nil
}

// Close unsubscribes the endpoint. Closing the last live endpoint closes
// the physical channel. Idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil
	}
	e.open = false
	e.in = nil
	e.mu.Unlock()

	return e.proxy.unsubscribe(e)
}

// Send forwards the payload onto the shared physical channel through the
// proxy's serialized transmit path.
func (e *Endpoint) Send(payload []byte) error {
	e.mu.Lock()
	open := e.open
	e.mu.Unlock()
	if !open {
		return fmt.Errorf("proxy endpoint %q: %w", e.alias, channel.ErrNotOpen)
	}
	return e.proxy.sendPhysical(e.alias, payload)
}

// Receive waits up to timeout for one dispatched message.
func (e *Endpoint) Receive(timeout time.Duration) (channel.Message, error) {
	e.mu.Lock()
	in := e.in
	open := e.open
	e.mu.Unlock()
	if !open || in == nil {
		return channel.Message{}, fmt.Errorf("proxy endpoint %q: %w", e.alias, channel.ErrNotOpen)
	}

	if timeout <= 0 {
		select {
		case msg := <-in:
			return msg, nil
		default:
			return channel.Message{}, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-in:
		return msg, nil
	case <-timer.C:
		return channel.Message{}, nil
	}
}

// push delivers one dispatched message into the endpoint buffer without
// ever blocking the dispatch loop: a full buffer drops the oldest entry.
func (e *Endpoint) push(msg channel.Message) {
	e.mu.Lock()
	in := e.in
	e.mu.Unlock()
	if in == nil {
		return
	}

	for {
		select {
		case in <- msg:
			return
		default:
			select {
			case <-in:
				log.Printf("[Proxy] endpoint %s: buffer full, dropped oldest message", e.alias)
			default:
			}
		}
	}
}
