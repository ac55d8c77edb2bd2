// Package coordinator turns a validated configuration graph into a live
// session: channels and proxies first, then auxiliary facades, started in
// deterministic order and torn down best-effort in reverse. It is the
// only package that knows how the pieces plug together; tests and the CLI
// only ever see the finished Environment.
package coordinator

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/internal/builtin"
	"github.com/dyluth/rig/internal/config"
	"github.com/dyluth/rig/internal/docker"
	"github.com/dyluth/rig/internal/proxy"
	"github.com/dyluth/rig/internal/registry"
	"github.com/dyluth/rig/internal/timespec"
	"github.com/dyluth/rig/pkg/channel"
)

// HostCommand produces the argv used to launch a process-isolated
// auxiliary host for the given alias.
type HostCommand func(alias string) []string

// Session owns every live object built from one configuration: channels,
// proxies, facades. Build once, Setup, use, Teardown.
type Session struct {
	cfg        *config.RigConfig
	graph      *config.Graph
	configPath string
	runID      string
	reg        *registry.Registry
	hostCmd    HostCommand

	mu       sync.Mutex
	env      *registry.Environment
	proxies  map[string]*proxy.Proxy
	auxes    map[string]*auxiliary.Facade
	tornDown bool
}

// SessionOption tweaks session construction.
type SessionOption func(*Session)

// WithHostCommand overrides how process-isolated auxiliary hosts are
// launched. The default re-executes the current binary's aux-host
// command.
func WithHostCommand(fn HostCommand) SessionOption {
	return func(s *Session) { s.hostCmd = fn }
}

// WithRegistry substitutes the type registry. The default carries the
// built-in connector and auxiliary types.
func WithRegistry(r *registry.Registry) SessionOption {
	return func(s *Session) { s.reg = r }
}

// NewSession normalizes the configuration and prepares the registry. No
// channel is opened and no auxiliary started until Setup.
func NewSession(cfg *config.RigConfig, configPath string, opts ...SessionOption) (*Session, error) {
	graph, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		graph:      graph,
		configPath: configPath,
		runID:      docker.GenerateRunID(),
		env:        registry.NewEnvironment(),
		proxies:    make(map[string]*proxy.Proxy),
		auxes:      make(map[string]*auxiliary.Facade),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.reg == nil {
		s.reg = registry.New()
		if err := builtin.Register(s.reg, s.runID); err != nil {
			return nil, fmt.Errorf("failed to populate registry: %w", err)
		}
	}
	if s.hostCmd == nil {
		s.hostCmd = func(alias string) []string {
			return []string{os.Args[0], "aux-host", "--config", configPath, "--aux", alias}
		}
	}
	return s, nil
}

// RunID identifies this session. Containers and other external resources
// are labelled with it.
func (s *Session) RunID() string {
	return s.runID
}

// Environment returns the alias-keyed lookup of live facades and
// channels. Valid after Setup.
func (s *Session) Environment() *registry.Environment {
	return s.env
}

// Graph exposes the normalized configuration graph.
func (s *Session) Graph() *config.Graph {
	return s.graph
}

// Setup builds every channel, proxy and facade, then starts the
// auto-start auxiliaries in deterministic alias order. With fail_fast
// set, the first start failure tears the whole session down and aborts;
// otherwise failures are collected and the remaining auxiliaries still
// start.
func (s *Session) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buildProxies(); err != nil {
		s.teardownLocked()
		return err
	}
	if err := s.buildAuxiliaries(); err != nil {
		s.teardownLocked()
		return err
	}

	var startErrs []error
	for _, alias := range s.graph.SortedAuxAliases() {
		if !s.graph.Auxiliaries[alias].AutoStart {
			continue
		}
		f := s.auxes[alias]
		log.Printf("[Coordinator] starting auxiliary %s", alias)
		if err := f.CreateInstance(); err != nil {
			err = fmt.Errorf("auxiliary %q failed to start: %w", alias, err)
			if s.cfg.FailFast {
				s.teardownLocked()
				return err
			}
			startErrs = append(startErrs, err)
		}
	}
	return errors.Join(startErrs...)
}

// buildProxies creates the physical channel and multiplexer for every
// connector shared by two or more auxiliaries. Caller holds mu.
func (s *Session) buildProxies() error {
	for _, proxyAlias := range s.graph.SortedProxyAliases() {
		node := s.graph.Proxies[proxyAlias]
		conn := s.graph.Connectors[node.Connector]

		phys, err := s.reg.BuildChannel(conn.Type, node.Connector, conn.Params)
		if err != nil {
			return fmt.Errorf("proxy %q: %w", proxyAlias, err)
		}

		pcfg := proxy.Config{AuxList: node.AuxList}
		if pc := s.cfg.Proxy; pc != nil {
			pcfg.ActivateTrace = pc.ActivateTrace
			pcfg.TraceDir = pc.TraceDir
			pcfg.TraceName = pc.TraceName
			pcfg.TraceStrategy = pc.Strategy()
		}
		if pcfg.TraceName == "" {
			pcfg.TraceName = proxyAlias
		}

		p, err := proxy.New(proxyAlias, phys, pcfg)
		if err != nil {
			return err
		}
		s.proxies[proxyAlias] = p
		log.Printf("[Coordinator] synthesized proxy %s over %s for %v", proxyAlias, node.Connector, node.AuxList)
	}
	return nil
}

// buildAuxiliaries constructs the facade for every declared auxiliary,
// wiring it to a direct channel or a proxy endpoint. Caller holds mu.
func (s *Session) buildAuxiliaries() error {
	for _, alias := range s.graph.SortedAuxAliases() {
		aux := s.graph.Auxiliaries[alias]

		opts, err := facadeOptions(aux)
		if err != nil {
			return fmt.Errorf("auxiliary %q: %w", alias, err)
		}

		var f *auxiliary.Facade
		if aux.Isolation == config.IsolationProcess {
			// The subprocess host builds its own channel and handler
			// from the same config; the parent only drives the queue
			// pair over stdio.
			if _, proxied := s.graph.ProxyOf[alias]; proxied {
				return fmt.Errorf("auxiliary %q: process isolation requires an exclusive connector", alias)
			}
			f = auxiliary.NewProcessFacade(alias, s.hostCmd(alias), opts...)
		} else {
			ch, err := s.channelFor(alias)
			if err != nil {
				return err
			}
			h, err := s.reg.BuildHandler(aux.Type, alias, ch, aux.Params)
			if err != nil {
				return fmt.Errorf("auxiliary %q: %w", alias, err)
			}
			f = auxiliary.NewFacade(alias, h, opts...)
		}

		s.auxes[alias] = f
		s.env.PutAux(alias, f)
	}
	return nil
}

// facadeOptions translates the declared lifecycle timeouts into facade
// options. Unset fields keep the framework defaults.
func facadeOptions(aux config.Auxiliary) ([]auxiliary.Option, error) {
	var opts []auxiliary.Option

	createTimeout, err := timespec.Duration(aux.CreateTimeout, 0)
	if err != nil {
		return nil, fmt.Errorf("create_timeout: %w", err)
	}
	if createTimeout > 0 {
		opts = append(opts, auxiliary.WithCreateTimeout(createTimeout))
	}

	stopTimeout, err := timespec.Duration(aux.StopTimeout, 0)
	if err != nil {
		return nil, fmt.Errorf("stop_timeout: %w", err)
	}
	if stopTimeout > 0 {
		opts = append(opts, auxiliary.WithStopTimeout(stopTimeout))
	}
	return opts, nil
}

// channelFor resolves the channel an auxiliary drives: a proxy endpoint
// when the connector is shared, a freshly built channel otherwise.
func (s *Session) channelFor(alias string) (channel.Channel, error) {
	if proxyAlias, proxied := s.graph.ProxyOf[alias]; proxied {
		ep, err := s.proxies[proxyAlias].Endpoint(alias)
		if err != nil {
			return nil, err
		}
		s.env.PutChannel(alias, ep)
		return ep, nil
	}

	connAlias := s.graph.ChannelOf[alias]
	conn := s.graph.Connectors[connAlias]
	ch, err := s.reg.BuildChannel(conn.Type, connAlias, conn.Params)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %q: %w", alias, err)
	}
	s.env.PutChannel(connAlias, ch)
	return ch, nil
}

// NotifyBoundary fans a test-execution boundary out to every proxy so
// their trace sinks can rotate files.
func (s *Session) NotifyBoundary(kind proxy.Boundary, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proxies {
		p.NotifyBoundary(kind, name)
	}
}

// Proxies lists the synthesized multiplexers, sorted by alias.
func (s *Session) Proxies() []*proxy.Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	aliases := make([]string, 0, len(s.proxies))
	for alias := range s.proxies {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	out := make([]*proxy.Proxy, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, s.proxies[alias])
	}
	return out
}

// Teardown stops every auxiliary in reverse start order and then the
// proxies. Best effort and idempotent: a facade that fails to stop is
// logged, never fatal, and teardown always runs to completion.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.tornDown {
		return
	}
	s.tornDown = true

	aliases := s.graph.SortedAuxAliases()
	for i := len(aliases) - 1; i >= 0; i-- {
		f, ok := s.auxes[aliases[i]]
		if !ok {
			continue
		}
		if err := f.DeleteInstance(); err != nil {
			log.Printf("[Coordinator] failed to stop auxiliary %s: %v", aliases[i], err)
		}
	}

	for _, alias := range s.graph.SortedProxyAliases() {
		if p, ok := s.proxies[alias]; ok {
			p.Stop()
		}
	}
	log.Printf("[Coordinator] session %s torn down", s.runID[:8])
}
