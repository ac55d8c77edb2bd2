package auxiliary

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCreateTimeout bounds the wait for the create hook
	// (flashing a target can be slow).
	DefaultCreateTimeout = 15 * time.Second
	// DefaultStopTimeout bounds the worker join during delete. A worker
	// that outlives it is abandoned and logged, never waited on forever.
	DefaultStopTimeout = 5 * time.Second
)

// Facade is the public, thread-safe synchronous API of one auxiliary
// instance. It translates calls into queue operations against the worker
// and owns the lifecycle state machine.
//
// A per-instance mutex serializes overlapping calls from multiple test
// goroutines: at most one request is in flight per facade call, so replies
// pair with the request that produced them.
type Facade struct {
	alias string

	mu    sync.Mutex
	state State
	w     worker

	// handler is kept for best-effort cleanup when the worker cannot be
	// stopped cleanly. Nil for process-isolated facades.
	handler Handler

	newWorker     func() worker
	createTimeout time.Duration
	stopTimeout   time.Duration
}

// Option adjusts facade construction.
type Option func(*Facade)

// WithCreateTimeout overrides the bound on the create hook.
func WithCreateTimeout(d time.Duration) Option {
	return func(f *Facade) { f.createTimeout = d }
}

// WithStopTimeout overrides the bound on worker join during delete.
func WithStopTimeout(d time.Duration) Option {
	return func(f *Facade) { f.stopTimeout = d }
}

// NewFacade builds a facade running the handler's loops in-process.
func NewFacade(alias string, h Handler, opts ...Option) *Facade {
	f := &Facade{
		alias:         alias,
		handler:       h,
		createTimeout: DefaultCreateTimeout,
		stopTimeout:   DefaultStopTimeout,
	}
	f.newWorker = func() worker { return newThreadWorker(alias, h) }
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Alias returns the configured alias.
func (f *Facade) Alias() string {
	return f.alias
}

// State returns the current lifecycle state.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsInstance reports whether the auxiliary is running and accepting
// commands.
func (f *Facade) IsInstance() bool {
	return f.State() == Running
}

// CreateInstance spawns a fresh worker and runs the handler's create hook.
// Calling it while the instance is already running is an idempotent no-op.
// On failure the instance ends Uninstantiated and the error is returned;
// whether that aborts the whole session is the coordinator's call
// (fail-fast mode).
func (f *Facade) CreateInstance() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Running {
		log.Printf("[Auxiliary] %s: already running, create is a no-op", f.alias)
		return nil
	}

	f.state = Starting
	w := f.newWorker()
	if err := w.start(); err != nil {
		f.state = Uninstantiated
		return fmt.Errorf("auxiliary %q: failed to start worker: %w", f.alias, err)
	}

	req := Request{ID: uuid.New().String(), Op: OpCreate}
	if err := w.submit(req); err != nil {
		w.kill()
		w.join(f.stopTimeout)
		f.state = Uninstantiated
		return fmt.Errorf("auxiliary %q: failed to submit create: %w", f.alias, err)
	}

	rep, err := w.awaitReply(f.createTimeout)
	if err != nil || !rep.OK {
		w.kill()
		if !w.join(f.stopTimeout) {
			log.Printf("[Auxiliary] %s: worker did not stop after failed create", f.alias)
		}
		f.closeBestEffort()
		f.state = Uninstantiated
		if err != nil {
			return fmt.Errorf("auxiliary %q: no response to create within %v", f.alias, f.createTimeout)
		}
		return fmt.Errorf("auxiliary %q: creation failed", f.alias)
	}

	f.w = w
	f.state = Running
	log.Printf("[Auxiliary] %s: instance created", f.alias)
	return nil
}

// DeleteInstance stops the worker and closes the channel, best effort.
// The delete sentinel flows through the request queue so pending commands
// are processed first; the join is bounded and an unresolved worker is
// abandoned rather than deadlocking teardown. Idempotent: deleting an
// uninstantiated instance is a no-op.
func (f *Facade) DeleteInstance() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLocked()
	return nil
}

func (f *Facade) deleteLocked() {
	if f.state == Uninstantiated || f.state == Suspended || f.w == nil {
		f.state = Uninstantiated
		return
	}

	f.state = Stopping

	submitted := true
	if err := f.w.submit(Request{ID: uuid.New().String(), Op: OpDelete}); err != nil {
		log.Printf("[Auxiliary] %s: failed to submit delete sentinel: %v", f.alias, err)
		submitted = false
	}

	if submitted {
		f.drainForAck(f.stopTimeout)
	}

	if !f.w.join(f.stopTimeout) {
		// Abandon the worker: log as unresolved, force-close anyway.
		log.Printf("[Auxiliary] %s: worker did not stop within %v, abandoning", f.alias, f.stopTimeout)
		f.w.kill()
		f.closeBestEffort()
	} else if !submitted {
		f.closeBestEffort()
	}

	f.w = nil
	f.state = Uninstantiated
	log.Printf("[Auxiliary] %s: instance deleted", f.alias)
}

// drainForAck consumes replies until the lifecycle ack (ReplyBool) shows
// up, discarding unsolicited message reports queued before it.
func (f *Facade) drainForAck(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		rep, err := f.w.awaitReply(remaining)
		if err != nil {
			return false
		}
		if rep.Kind == ReplyBool {
			if !rep.OK {
				log.Printf("[Auxiliary] %s: lifecycle hook reported failure", f.alias)
			}
			return rep.OK
		}
	}
}

// closeBestEffort runs the delete hook directly when the worker could not
// do it. Only possible for in-process handlers.
func (f *Facade) closeBestEffort() {
	if f.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Auxiliary] %s: cleanup panicked: %v", f.alias, r)
		}
	}()
	if err := f.handler.DeleteInstance(); err != nil {
		log.Printf("[Auxiliary] %s: best-effort cleanup failed: %v", f.alias, err)
	}
}

// RunCommand submits a named command and blocks up to timeout for the
// reply. Absence of a reply is the distinct ErrNoReport outcome, not a
// failure: the handler may still be processing and the result may surface
// later via WaitAndGetReport. The in-flight operation is not cancelled by
// the timeout.
func (f *Facade) RunCommand(name string, data []byte, timeout time.Duration) (*Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Running {
		return nil, fmt.Errorf("auxiliary %q: %w", f.alias, ErrNotRunning)
	}

	req := Request{ID: uuid.New().String(), Op: OpRun, Name: name, Data: data}
	if err := f.w.submit(req); err != nil {
		return nil, err
	}

	rep, err := f.w.awaitReply(timeout)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %q: command %q: %w", f.alias, name, ErrNoReport)
	}
	return f.reportFromReply(name, rep)
}

// SendCommand is the fire-and-forget variant of RunCommand: it enqueues
// the command and returns immediately without waiting for a reply. Used
// for sends that do not expect an immediate answer; the eventual reply
// stays in the queue for WaitAndGetReport.
func (f *Facade) SendCommand(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Running {
		return fmt.Errorf("auxiliary %q: %w", f.alias, ErrNotRunning)
	}
	return f.w.submit(Request{ID: uuid.New().String(), Op: OpRun, Name: name, Data: data})
}

// WaitAndGetReport blocks up to timeout for the next report: a pending
// command result or a message captured by the receive loop. timeout <= 0
// polls without blocking. ErrNoReport when nothing is available.
func (f *Facade) WaitAndGetReport(timeout time.Duration) (*Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Running {
		return nil, fmt.Errorf("auxiliary %q: %w", f.alias, ErrNotRunning)
	}

	rep, err := f.w.awaitReply(timeout)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %q: %w", f.alias, ErrNoReport)
	}
	return f.reportFromReply("", rep)
}

func (f *Facade) reportFromReply(name string, rep Reply) (*Report, error) {
	switch rep.Kind {
	case ReplyMessage:
		return rep.Report, nil
	case ReplyNone:
		if name != "" {
			return nil, fmt.Errorf("auxiliary %q: command %q failed", f.alias, name)
		}
		return nil, fmt.Errorf("auxiliary %q: command failed", f.alias)
	default:
		// Lifecycle ack surfacing here means a caller skipped its own
		// reply earlier; hand back an empty report.
		return &Report{}, nil
	}
}

// AbortCommand asks the handler to cancel in-flight work. Best effort:
// the abort travels through the request queue and the handler is expected
// to also signal the device out-of-band. Failure to abort is reported but
// does not block subsequent lifecycle operations.
func (f *Facade) AbortCommand() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Running {
		return fmt.Errorf("auxiliary %q: %w", f.alias, ErrNotRunning)
	}

	if err := f.w.submit(Request{ID: uuid.New().String(), Op: OpAbort}); err != nil {
		return err
	}
	if !f.drainForAck(f.stopTimeout) {
		return fmt.Errorf("auxiliary %q: abort not acknowledged", f.alias)
	}
	return nil
}

// Suspend temporarily tears the instance down (configuration swaps).
// Resume brings it back. At most one worker is ever live per alias.
func (f *Facade) Suspend() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Running {
		return fmt.Errorf("auxiliary %q: %w", f.alias, ErrNotRunning)
	}
	f.deleteLocked()
	f.state = Suspended
	log.Printf("[Auxiliary] %s: suspended", f.alias)
	return nil
}

// Resume recreates a suspended instance.
func (f *Facade) Resume() error {
	return f.CreateInstance()
}
