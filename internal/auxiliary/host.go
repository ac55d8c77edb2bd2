package auxiliary

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
)

// RunHost is the child-process side of the process-isolated worker: it
// runs the standard loops against the handler and bridges the queue pair
// to the parent over in/out as newline-delimited JSON.
//
// Requests are read from in until EOF (the parent closes its end to signal
// shutdown); replies are written to out in queue order. Returns once the
// loops have exited.
func RunHost(alias string, h Handler, in io.Reader, out io.Writer) error {
	w := newThreadWorker(alias, h)
	if err := w.start(); err != nil {
		return fmt.Errorf("aux-host %q: %w", alias, err)
	}

	// Reply pump: queue order preserved, flushed on stop.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		enc := json.NewEncoder(out)
		for {
			select {
			case rep := <-w.replies:
				if err := enc.Encode(rep); err != nil {
					log.Printf("[AuxHost] %s: reply stream broken: %v", alias, err)
					return
				}
			case <-w.stop:
				// Drain what the loops pushed before stopping.
				for {
					select {
					case rep := <-w.replies:
						if err := enc.Encode(rep); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	dec := json.NewDecoder(in)
	deleted := false
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF {
				log.Printf("[AuxHost] %s: request stream broken: %v", alias, err)
			}
			break
		}
		if err := w.submit(req); err != nil {
			log.Printf("[AuxHost] %s: dropping request %s: %v", alias, req.Op, err)
			continue
		}
		if req.Op == OpDelete {
			// Sentinel: the transmit loop exits after processing it.
			deleted = true
			break
		}
	}

	if deleted {
		// Let the delete hook run before forcing anything.
		if !w.join(DefaultStopTimeout) {
			log.Printf("[AuxHost] %s: loops did not stop within %v", alias, DefaultStopTimeout)
			w.kill()
		}
	} else {
		w.kill()
		if !w.join(DefaultStopTimeout) {
			log.Printf("[AuxHost] %s: loops did not stop within %v", alias, DefaultStopTimeout)
		}
	}
	<-pumpDone
	return nil
}
