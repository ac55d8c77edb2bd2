// Package proxy multiplexes one physical channel across several
// auxiliaries. Each downstream auxiliary gets a lightweight proxy channel
// implementing the channel contract; the proxy serializes their writes
// onto the shared medium and broadcasts every inbound message to the
// currently subscribed endpoints.
package proxy

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/rig/pkg/channel"
)

const (
	// receivePoll bounds the physical receive so the dispatch loop
	// observes a stop signal within one poll interval.
	receivePoll = 10 * time.Millisecond

	// loopStopTimeout bounds the wait for the dispatch loop on shutdown.
	loopStopTimeout = time.Second
)

// Config is the proxy configuration surface.
type Config struct {
	// AuxList names the downstream auxiliary aliases sharing the medium.
	AuxList []string
	// ActivateTrace turns on the append-only trace of raw receives.
	ActivateTrace bool
	TraceDir      string
	TraceName     string
	TraceStrategy Strategy
}

// Proxy owns exactly one physical channel and fans it out to the proxy
// channels synthesized for each downstream alias.
//
// The physical channel's lifecycle is reference-counted by subscription
// membership: the first proxy channel to open opens the medium and starts
// the dispatch loop, the last one to close shuts both down. Nobody calls
// open or close on the proxy itself.
type Proxy struct {
	alias    string
	physical channel.Channel
	cfg      Config

	// lifeMu serializes open/close transitions so a racing first-open and
	// last-close cannot interleave. Never taken by the dispatch loop.
	lifeMu sync.Mutex

	// mu guards the subscription table and the trace pointer. Dispatch
	// takes the read side, (un)subscribe the write side.
	mu        sync.RWMutex
	subs      map[string]*Endpoint
	trace     *TraceSink
	endpoints map[string]*Endpoint

	// sendMu serializes writes onto the shared medium so interleaved
	// sends from different auxiliaries cannot corrupt it.
	sendMu sync.Mutex

	loopStop chan struct{}
	loopDone chan struct{}
}

// New builds a proxy around the physical channel and synthesizes one
// endpoint per downstream alias.
func New(alias string, physical channel.Channel, cfg Config) (*Proxy, error) {
	if physical == nil {
		return nil, fmt.Errorf("proxy %q: physical channel is required", alias)
	}
	if len(cfg.AuxList) == 0 {
		return nil, fmt.Errorf("proxy %q: aux_list must name at least one auxiliary", alias)
	}
	if cfg.ActivateTrace {
		if err := cfg.TraceStrategy.Validate(); err != nil {
			return nil, fmt.Errorf("proxy %q: %w", alias, err)
		}
	}

	p := &Proxy{
		alias:     alias,
		physical:  physical,
		cfg:       cfg,
		subs:      make(map[string]*Endpoint),
		endpoints: make(map[string]*Endpoint),
	}
	for _, aux := range cfg.AuxList {
		if _, dup := p.endpoints[aux]; dup {
			return nil, fmt.Errorf("proxy %q: duplicate auxiliary %q in aux_list", alias, aux)
		}
		p.endpoints[aux] = &Endpoint{alias: aux, proxy: p}
	}
	return p, nil
}

// Alias returns the proxy's configured alias.
func (p *Proxy) Alias() string {
	return p.alias
}

// Endpoint returns the proxy channel synthesized for a downstream alias.
func (p *Proxy) Endpoint(aux string) (*Endpoint, error) {
	ep, ok := p.endpoints[aux]
	if !ok {
		return nil, fmt.Errorf("proxy %q: no endpoint for auxiliary %q", p.alias, aux)
	}
	return ep, nil
}

// subscribe registers an endpoint as live. The first subscriber opens the
// physical channel, starts the trace sink and the dispatch loop.
func (p *Proxy) subscribe(ep *Endpoint) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	p.mu.RLock()
	_, live := p.subs[ep.alias]
	count := len(p.subs)
	p.mu.RUnlock()

	if live {
		return fmt.Errorf("proxy %q: endpoint %q already open", p.alias, ep.alias)
	}

	if count == 0 {
		if err := p.start(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.subs[ep.alias] = ep
	count = len(p.subs)
	p.mu.Unlock()

	log.Printf("[Proxy] %s: %s subscribed (%d live)", p.alias, ep.alias, count)
	return nil
}

// unsubscribe removes an endpoint. The last subscriber stops the dispatch
// loop and closes the physical channel.
func (p *Proxy) unsubscribe(ep *Endpoint) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	p.mu.Lock()
	if _, live := p.subs[ep.alias]; !live {
		p.mu.Unlock()
		return nil
	}
	delete(p.subs, ep.alias)
	count := len(p.subs)
	p.mu.Unlock()

	log.Printf("[Proxy] %s: %s unsubscribed (%d live)", p.alias, ep.alias, count)

	if count == 0 {
		p.stop()
	}
	return nil
}

// start opens the medium and spawns the dispatch loop. Caller holds lifeMu.
func (p *Proxy) start() error {
	if err := p.physical.Open(); err != nil {
		return fmt.Errorf("proxy %q: failed to open physical channel: %w", p.alias, err)
	}

	if p.cfg.ActivateTrace {
		sink, err := NewTraceSink(p.cfg.TraceDir, p.cfg.TraceName, p.cfg.TraceStrategy)
		if err != nil {
			p.physical.Close()
			return fmt.Errorf("proxy %q: %w", p.alias, err)
		}
		p.mu.Lock()
		p.trace = sink
		p.mu.Unlock()
	}

	p.loopStop = make(chan struct{})
	p.loopDone = make(chan struct{})
	go p.dispatchLoop(p.loopStop, p.loopDone)

	log.Printf("[Proxy] %s: physical channel opened", p.alias)
	return nil
}

// stop joins the dispatch loop and closes the medium. Caller holds lifeMu.
// The loop only ever takes mu's read side, so joining here cannot
// deadlock.
func (p *Proxy) stop() {
	close(p.loopStop)
	select {
	case <-p.loopDone:
	case <-time.After(loopStopTimeout):
		log.Printf("[Proxy] %s: dispatch loop did not stop within %v", p.alias, loopStopTimeout)
	}

	if err := p.physical.Close(); err != nil {
		log.Printf("[Proxy] %s: failed to close physical channel: %v", p.alias, err)
	}

	p.mu.Lock()
	sink := p.trace
	p.trace = nil
	p.mu.Unlock()
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Printf("[Proxy] %s: failed to close trace: %v", p.alias, err)
		}
	}
	log.Printf("[Proxy] %s: physical channel closed", p.alias)
}

// Stop force-closes any endpoints still open. Safety net for session
// teardown; a clean run closes them via their owning auxiliaries.
func (p *Proxy) Stop() {
	p.mu.RLock()
	remaining := make([]*Endpoint, 0, len(p.subs))
	for _, ep := range p.subs {
		remaining = append(remaining, ep)
	}
	p.mu.RUnlock()

	for _, ep := range remaining {
		if err := ep.Close(); err != nil {
			log.Printf("[Proxy] %s: failed to close endpoint %q: %v", p.alias, ep.alias, err)
		}
	}
}

// NotifyBoundary forwards a test-execution boundary to the trace sink for
// file rotation. No-op when tracing is off or the proxy is idle.
func (p *Proxy) NotifyBoundary(kind Boundary, name string) {
	p.mu.RLock()
	sink := p.trace
	p.mu.RUnlock()
	if sink == nil {
		return
	}
	if err := sink.NotifyBoundary(kind, name); err != nil {
		log.Printf("[Proxy] %s: trace rotation failed: %v", p.alias, err)
	}
}

// TraceEntries reports how many receives the trace sink has recorded in
// the current busy period. Zero when tracing is off or the proxy is idle.
func (p *Proxy) TraceEntries() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.trace == nil {
		return 0
	}
	return p.trace.Entries()
}

// dispatchLoop reads the physical channel and broadcasts every message to
// the live subscribers. Each raw receive is traced regardless of how many
// (zero or more) subscribers consume it; a message arriving while nobody
// is subscribed is discarded, never queued for later.
func (p *Proxy) dispatchLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		msg, err := p.physical.Receive(receivePoll)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			log.Printf("[Proxy] %s: physical receive failed: %v", p.alias, err)
			continue
		}
		if msg.Empty() {
			continue
		}

		p.mu.RLock()
		if p.trace != nil {
			if terr := p.trace.Record(msg.Payload); terr != nil {
				log.Printf("[Proxy] %s: trace write failed: %v", p.alias, terr)
			}
		}
		if len(p.subs) == 0 {
			log.Printf("[Proxy] %s: no subscriber, discarding %d bytes", p.alias, len(msg.Payload))
		}
		for _, ep := range p.subs {
			ep.push(msg)
		}
		p.mu.RUnlock()
	}
}

// sendPhysical serializes one write onto the shared medium. A failed send
// is the originating caller's problem only; the proxy keeps running for
// the other subscribers.
func (p *Proxy) sendPhysical(from string, payload []byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if err := p.physical.Send(payload); err != nil {
		log.Printf("[Proxy] %s: send from %s failed: %v", p.alias, from, err)
		return fmt.Errorf("proxy %q: send failed: %w", p.alias, err)
	}
	return nil
}
