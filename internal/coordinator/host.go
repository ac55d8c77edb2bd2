package coordinator

import (
	"fmt"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/internal/builtin"
	"github.com/dyluth/rig/internal/config"
	"github.com/dyluth/rig/internal/docker"
	"github.com/dyluth/rig/internal/registry"
)

// HostHandler builds the channel and handler for one auxiliary inside a
// process-isolated host. The subprocess loads the same configuration as
// the parent and resolves just its own alias.
func HostHandler(cfg *config.RigConfig, alias string) (auxiliary.Handler, error) {
	graph, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	aux, ok := graph.Auxiliaries[alias]
	if !ok {
		return nil, fmt.Errorf("no auxiliary %q in configuration", alias)
	}
	if _, proxied := graph.ProxyOf[alias]; proxied {
		return nil, fmt.Errorf("auxiliary %q: process isolation requires an exclusive connector", alias)
	}

	reg := registry.New()
	if err := builtin.Register(reg, docker.GenerateRunID()); err != nil {
		return nil, fmt.Errorf("failed to populate registry: %w", err)
	}

	connAlias := graph.ChannelOf[alias]
	conn := graph.Connectors[connAlias]
	ch, err := reg.BuildChannel(conn.Type, connAlias, conn.Params)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %q: %w", alias, err)
	}

	h, err := reg.BuildHandler(aux.Type, alias, ch, aux.Params)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %q: %w", alias, err)
	}
	return h, nil
}
