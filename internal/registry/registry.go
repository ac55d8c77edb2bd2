// Package registry maps canonical type identifiers from the configuration
// to constructor closures for channels and auxiliary handlers. It is the
// explicit replacement for dynamic module loading: every buildable type is
// registered at startup, and required constructor parameters are declared
// up front and validated before construction.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/pkg/channel"
)

// ChannelBuilder constructs one channel instance from config params.
type ChannelBuilder func(alias string, params map[string]any) (channel.Channel, error)

// HandlerBuilder constructs one auxiliary handler bound to its channel.
type HandlerBuilder func(alias string, ch channel.Channel, params map[string]any) (auxiliary.Handler, error)

type channelEntry struct {
	required []string
	build    ChannelBuilder
}

type handlerEntry struct {
	required []string
	build    HandlerBuilder
}

// Registry is the registration table. Thread-safe; populated at startup,
// read for the rest of the session.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]channelEntry
	handlers map[string]handlerEntry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		channels: make(map[string]channelEntry),
		handlers: make(map[string]handlerEntry),
	}
}

// RegisterChannel adds a channel type. required names the params the
// builder cannot work without. Duplicate registration is an error.
func (r *Registry) RegisterChannel(typeID string, required []string, build ChannelBuilder) error {
	if typeID == "" || build == nil {
		return fmt.Errorf("channel registration requires a type id and a builder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.channels[typeID]; dup {
		return fmt.Errorf("channel type %q already registered", typeID)
	}
	r.channels[typeID] = channelEntry{required: required, build: build}
	return nil
}

// RegisterHandler adds an auxiliary handler type. Duplicate registration
// is an error.
func (r *Registry) RegisterHandler(typeID string, required []string, build HandlerBuilder) error {
	if typeID == "" || build == nil {
		return fmt.Errorf("handler registration requires a type id and a builder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[typeID]; dup {
		return fmt.Errorf("handler type %q already registered", typeID)
	}
	r.handlers[typeID] = handlerEntry{required: required, build: build}
	return nil
}

// BuildChannel validates the params and constructs a channel of the given
// type.
func (r *Registry) BuildChannel(typeID, alias string, params map[string]any) (channel.Channel, error) {
	r.mu.RLock()
	entry, ok := r.channels[typeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connector type %q (known: %v)", typeID, r.ChannelTypes())
	}
	if err := checkRequired("connector", typeID, entry.required, params); err != nil {
		return nil, err
	}
	return entry.build(alias, params)
}

// BuildHandler validates the params and constructs a handler of the given
// type bound to ch.
func (r *Registry) BuildHandler(typeID, alias string, ch channel.Channel, params map[string]any) (auxiliary.Handler, error) {
	r.mu.RLock()
	entry, ok := r.handlers[typeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown auxiliary type %q (known: %v)", typeID, r.HandlerTypes())
	}
	if err := checkRequired("auxiliary", typeID, entry.required, params); err != nil {
		return nil, err
	}
	return entry.build(alias, ch, params)
}

// ChannelTypes lists the registered connector type ids, sorted.
func (r *Registry) ChannelTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HandlerTypes lists the registered auxiliary type ids, sorted.
func (r *Registry) HandlerTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func checkRequired(kind, typeID string, required []string, params map[string]any) error {
	var missing []string
	for _, key := range required {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s type %q: missing required params: %v", kind, typeID, missing)
	}
	return nil
}

// StringParam extracts a string parameter with a default. Builders use it
// instead of type-asserting by hand.
func StringParam(params map[string]any, key, fallback string) (string, error) {
	v, ok := params[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q: expected string, got %T", key, v)
	}
	return s, nil
}

// IntParam extracts an integer parameter with a default. YAML unmarshals
// numbers as int.
func IntParam(params map[string]any, key string, fallback int) (int, error) {
	v, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %q: expected integer, got %T", key, v)
	}
}
