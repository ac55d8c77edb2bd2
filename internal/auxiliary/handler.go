package auxiliary

import "time"

// Handler is the auxiliary-specific half of the worker: the hooks the
// transmit loop dispatches to. Implementations own their Channel and are
// responsible for opening it in CreateInstance and closing it in
// DeleteInstance.
//
// Hooks are only ever called from the worker's loops, never concurrently
// with each other, except AbortCommand which the handler must make safe to
// call while RunCommand is in flight (out-of-band device signalling).
type Handler interface {
	// CreateInstance opens the channel and performs handler-specific
	// setup (flashing a target, priming a simulator). An error fails the
	// creation; the worker stays down.
	CreateInstance() error

	// DeleteInstance closes the channel and releases resources. Called
	// best-effort even when the worker failed to stop cleanly, so it
	// must tolerate partial setup.
	DeleteInstance() error

	// RunCommand executes one named command. Errors are contained by the
	// worker (logged, "no result this cycle") and never kill the loop.
	// A nil Report with nil error is pushed as an explicit empty reply.
	RunCommand(name string, data []byte) (*Report, error)

	// AbortCommand cancels in-flight work, best effort.
	AbortCommand() error
}

// Receiver is implemented by handlers that produce unsolicited inbound
// traffic. The worker runs a dedicated receive loop for them, polling with
// a short bound so lifecycle transitions are observed promptly.
// Handlers without a Receiver run single-threaded.
type Receiver interface {
	// ReceiveMessage waits up to timeout for one inbound message.
	// A nil Report with nil error means nothing arrived: not an error.
	ReceiveMessage(timeout time.Duration) (*Report, error)
}
