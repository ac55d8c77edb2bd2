package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/pkg/channel"
)

// Environment is the alias-keyed context object handed to test fixtures:
// every live auxiliary facade and channel of one session, looked up by the
// same aliases the configuration declares. It replaces any notion of
// globally-injected named singletons; fixtures receive the environment
// explicitly and there is no module-global mutable state.
//
// Built once per session by the coordinator, torn down at session end.
type Environment struct {
	mu       sync.RWMutex
	auxes    map[string]*auxiliary.Facade
	channels map[string]channel.Channel
}

// NewEnvironment creates an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		auxes:    make(map[string]*auxiliary.Facade),
		channels: make(map[string]channel.Channel),
	}
}

// PutAux registers a facade under its alias.
func (e *Environment) PutAux(alias string, f *auxiliary.Facade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auxes[alias] = f
}

// Aux looks up a facade by alias.
func (e *Environment) Aux(alias string) (*auxiliary.Facade, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.auxes[alias]
	if !ok {
		return nil, fmt.Errorf("no auxiliary %q in this session (known: %v)", alias, e.auxAliasesLocked())
	}
	return f, nil
}

// PutChannel registers a channel under its alias.
func (e *Environment) PutChannel(alias string, ch channel.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels[alias] = ch
}

// Channel looks up a channel by alias.
func (e *Environment) Channel(alias string) (channel.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[alias]
	if !ok {
		return nil, fmt.Errorf("no channel %q in this session", alias)
	}
	return ch, nil
}

// AuxAliases lists the registered auxiliary aliases, sorted.
func (e *Environment) AuxAliases() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.auxAliasesLocked()
}

func (e *Environment) auxAliasesLocked() []string {
	out := make([]string, 0, len(e.auxes))
	for alias := range e.auxes {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
