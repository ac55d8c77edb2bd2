package auxiliary

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"
)

// processWorker runs the worker loops in a child process (the hidden
// `rig aux-host` command) and bridges the queue pair over stdio as
// newline-delimited JSON. Blocking and ordering semantics are identical to
// the in-process backend from the facade's point of view: one writer, one
// reader, strict FIFO on both pipes.
//
// The child rebuilds the handler from the registry (type id + params), so
// only registry-constructible handlers can be process-isolated.
type processWorker struct {
	alias string
	argv  []string

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	enc      *json.Encoder
	replies  chan Reply
	done     chan struct{}
	killOnce sync.Once
}

func newProcessWorker(alias string, argv []string) *processWorker {
	return &processWorker{
		alias:   alias,
		argv:    argv,
		replies: make(chan Reply, replyQueueDepth),
		done:    make(chan struct{}),
	}
}

func (w *processWorker) start() error {
	if len(w.argv) == 0 {
		return fmt.Errorf("auxiliary %q: empty host command", w.alias)
	}

	cmd := exec.Command(w.argv[0], w.argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("auxiliary %q: stdin pipe: %w", w.alias, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("auxiliary %q: stdout pipe: %w", w.alias, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("auxiliary %q: failed to start host process: %w", w.alias, err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.enc = json.NewEncoder(stdin)

	go w.readLoop(stdout)
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[Worker] %s: host process exited: %v", w.alias, err)
		}
		close(w.done)
	}()

	return nil
}

// readLoop pumps replies from the child's stdout into the reply queue.
func (w *processWorker) readLoop(stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	for {
		var rep Reply
		if err := dec.Decode(&rep); err != nil {
			if err != io.EOF {
				log.Printf("[Worker] %s: reply stream broken: %v", w.alias, err)
			}
			return
		}
		select {
		case w.replies <- rep:
		default:
			select {
			case <-w.replies:
				log.Printf("[Worker] %s: reply queue full, dropped oldest", w.alias)
			default:
			}
			w.replies <- rep
		}
	}
}

func (w *processWorker) submit(req Request) error {
	if err := w.enc.Encode(req); err != nil {
		return fmt.Errorf("auxiliary %q: failed to forward request: %w", w.alias, err)
	}
	return nil
}

func (w *processWorker) awaitReply(timeout time.Duration) (Reply, error) {
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

func (w *processWorker) join(timeout time.Duration) bool {
	// Closing stdin is the child's EOF signal to shut down.
	w.killOnce.Do(func() { w.stdin.Close() })

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		return false
	}
}

func (w *processWorker) kill() {
	w.killOnce.Do(func() { w.stdin.Close() })
	if w.cmd != nil && w.cmd.Process != nil {
		select {
		case <-w.done:
		default:
			w.cmd.Process.Kill()
		}
	}
}

// NewProcessFacade builds a facade whose worker loops run in a separate
// host process started with argv. Used for CPU-bound or crash-prone
// handlers that should not share the test runner's address space.
func NewProcessFacade(alias string, argv []string, opts ...Option) *Facade {
	f := &Facade{
		alias:         alias,
		createTimeout: DefaultCreateTimeout,
		stopTimeout:   DefaultStopTimeout,
	}
	f.newWorker = func() worker { return newProcessWorker(alias, argv) }
	for _, opt := range opts {
		opt(f)
	}
	return f
}
