package auxiliary

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// receivePoll bounds the handler's receive hook so the loop observes
	// a stop signal within one poll interval.
	receivePoll = 10 * time.Millisecond

	// idlePoll is how long the receive loop sleeps while the instance is
	// not yet created (channel still closed).
	idlePoll = 10 * time.Millisecond

	requestQueueDepth = 32
	replyQueueDepth   = 64
)

// worker is the concurrent execution unit behind a Facade: spawn, a queue
// pair, and a bounded join. Two backends share the loop algorithm: the
// in-process goroutine pair (threadWorker) and a subprocess host
// (processWorker) for handlers that need isolation.
type worker interface {
	// start spawns the loops. The worker accepts requests afterwards.
	start() error
	// submit enqueues one request. Never blocks; ErrQueueFull signals
	// backpressure.
	submit(req Request) error
	// awaitReply waits up to timeout for the next outbound element.
	// timeout <= 0 polls without blocking. ErrNoReport when nothing is
	// available in time.
	awaitReply(timeout time.Duration) (Reply, error)
	// join waits for the loops to exit after a delete sentinel was
	// processed. Reports false on timeout.
	join(timeout time.Duration) bool
	// kill force-stops the loops without waiting for the queue to drain.
	kill()
}

// threadWorker runs the transmit loop and (for Receiver handlers) the
// receive loop as goroutines in this process. One threadWorker serves one
// create/delete cycle; the facade builds a fresh one on every create.
type threadWorker struct {
	alias    string
	handler  Handler
	requests chan Request
	replies  chan Reply
	stop     chan struct{}
	stopOnce sync.Once
	// created gates the receive loop: polling only makes sense once the
	// create hook has opened the channel.
	created atomic.Bool
	wg      sync.WaitGroup
}

func newThreadWorker(alias string, h Handler) *threadWorker {
	return &threadWorker{
		alias:    alias,
		handler:  h,
		requests: make(chan Request, requestQueueDepth),
		replies:  make(chan Reply, replyQueueDepth),
		stop:     make(chan struct{}),
	}
}

func (w *threadWorker) start() error {
	w.wg.Add(1)
	go w.transmitLoop()

	if recv, ok := w.handler.(Receiver); ok {
		w.wg.Add(1)
		go w.receiveLoop(recv)
	}
	return nil
}

func (w *threadWorker) submit(req Request) error {
	select {
	case w.requests <- req:
		return nil
	default:
		return fmt.Errorf("auxiliary %q: %w", w.alias, ErrQueueFull)
	}
}

func (w *threadWorker) awaitReply(timeout time.Duration) (Reply, error) {
	if timeout <= 0 {
		select {
		case rep := <-w.replies:
			return rep, nil
		default:
			return Reply{}, ErrNoReport
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rep := <-w.replies:
		return rep, nil
	case <-timer.C:
		return Reply{}, ErrNoReport
	}
}

func (w *threadWorker) join(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (w *threadWorker) kill() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// transmitLoop is the single consumer of the request queue: strict FIFO,
// one reply per request. It exits when a delete sentinel is processed or
// the worker is killed.
func (w *threadWorker) transmitLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			log.Printf("[Worker] %s: transmit loop force-stopped", w.alias)
			return

		case req := <-w.requests:
			switch req.Op {
			case OpCreate:
				err := w.safeHook("create", w.handler.CreateInstance)
				if err != nil {
					log.Printf("[Worker] %s: create failed: %v", w.alias, err)
				}
				w.created.Store(err == nil)
				w.pushReply(Reply{RequestID: req.ID, Kind: ReplyBool, OK: err == nil})

			case OpDelete:
				err := w.safeHook("delete", w.handler.DeleteInstance)
				if err != nil {
					log.Printf("[Worker] %s: delete failed: %v", w.alias, err)
				}
				w.created.Store(false)
				w.pushReply(Reply{RequestID: req.ID, Kind: ReplyBool, OK: err == nil})
				// Sentinel: release the receive loop and exit.
				w.kill()
				return

			case OpAbort:
				err := w.safeHook("abort", w.handler.AbortCommand)
				if err != nil {
					log.Printf("[Worker] %s: abort failed: %v", w.alias, err)
				}
				w.pushReply(Reply{RequestID: req.ID, Kind: ReplyBool, OK: err == nil})

			case OpRun:
				report, err := w.safeRun(req)
				if err != nil {
					// Contained: one bad command must not kill the
					// worker. No result this cycle.
					log.Printf("[Worker] %s: command %q failed: %v", w.alias, req.Name, err)
					w.pushReply(Reply{RequestID: req.ID, Kind: ReplyNone})
					continue
				}
				if report == nil {
					report = &Report{}
				}
				w.pushReply(Reply{RequestID: req.ID, Kind: ReplyMessage, OK: true, Report: report})
			}
		}
	}
}

// receiveLoop polls the handler's receive hook while the instance is
// created and pushes every captured message onto the reply queue. Handler
// errors are logged and treated as an empty cycle.
func (w *threadWorker) receiveLoop(recv Receiver) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		if !w.created.Load() {
			time.Sleep(idlePoll)
			continue
		}

		report, err := w.safeReceive(recv)
		if err != nil {
			log.Printf("[Worker] %s: receive failed: %v", w.alias, err)
			continue
		}
		if report == nil {
			continue
		}
		w.pushReply(Reply{Kind: ReplyMessage, OK: true, Report: report})
	}
}

// pushReply never blocks the loops: when the reply queue is full the
// oldest element is dropped and logged, matching a bounded hardware FIFO.
func (w *threadWorker) pushReply(rep Reply) {
	for {
		select {
		case w.replies <- rep:
			return
		default:
			select {
			case dropped := <-w.replies:
				log.Printf("[Worker] %s: reply queue full, dropped %v reply", w.alias, dropped.Kind)
			default:
			}
		}
	}
}

// safeHook shields the loops from handler panics during lifecycle hooks.
func (w *threadWorker) safeHook(name string, hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s hook panicked: %v", name, r)
		}
	}()
	return hook()
}

func (w *threadWorker) safeRun(req Request) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("command %q panicked: %v", req.Name, r)
		}
	}()
	return w.handler.RunCommand(req.Name, req.Data)
}

func (w *threadWorker) safeReceive(recv Receiver) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("receive hook panicked: %v", r)
		}
	}()
	return recv.ReceiveMessage(receivePoll)
}
