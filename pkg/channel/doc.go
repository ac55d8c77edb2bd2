// Package channel defines the transport contract every rig connector
// implements.
//
// # Overview
//
// A Channel is a capability abstraction over a transport medium (CAN, UART,
// TCP, a Redis stream, an in-memory loopback). It exposes open/close/send/
// receive and nothing else: a Channel owns no queues and spawns no
// goroutines of its own. Concurrency, buffering and lifecycle are the
// responsibility of the auxiliary worker that drives it.
//
// # Contract
//
// Send and Receive are only valid while the channel is open; both return
// ErrNotOpen otherwise. Receive returns a zero Message (nil Payload) when no
// data arrived within the timeout - ordinary absence of data is never an
// error. Errors are reserved for genuine transport failure. A channel must
// be reusable: Open after Close behaves identically to the first Open.
//
// # Usage Example
//
//	import "github.com/dyluth/rig/pkg/channel"
//
//	a, b := channel.LoopbackPair("tx", "rx")
//	if err := a.Open(); err != nil {
//		log.Fatal(err)
//	}
//	defer a.Close()
//
//	if err := a.Send([]byte("ping")); err != nil {
//		log.Fatal(err)
//	}
//	msg, err := b.Receive(100 * time.Millisecond)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if msg.Empty() {
//		// nothing arrived within the timeout
//	}
package channel
