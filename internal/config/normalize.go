package config

import (
	"fmt"
	"sort"
)

// Graph is the normalized form of a RigConfig: the implicit sharing of a
// connector by several auxiliaries has been rewritten into explicit proxy
// nodes. The rewrite is a plain pre-processing pass over the parsed
// configuration, so the transformation is inspectable and testable on its
// own instead of being hidden inside object construction.
type Graph struct {
	Connectors  map[string]Connector
	Auxiliaries map[string]Auxiliary
	// Proxies maps synthesized proxy alias -> node. A proxy exists for
	// every connector shared by two or more auxiliaries.
	Proxies map[string]ProxyNode
	// ChannelOf maps auxiliary alias -> the connector it drives directly.
	// Auxiliaries behind a proxy are absent: they receive a proxy
	// endpoint instead.
	ChannelOf map[string]string
	// ProxyOf maps auxiliary alias -> the proxy serving it, for
	// auxiliaries whose connector is shared.
	ProxyOf map[string]string
}

// ProxyNode is one synthesized multiplexer: a connector plus the sorted
// list of auxiliaries sharing it.
type ProxyNode struct {
	Alias     string
	Connector string
	AuxList   []string
}

// Normalize rewrites the configuration graph, inserting a proxy node for
// every connector referenced by more than one auxiliary. Users never
// declare proxies; sharing a connector alias is the whole trigger.
func (c *RigConfig) Normalize() (*Graph, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	byConnector := make(map[string][]string)
	for alias, aux := range c.Auxiliaries {
		byConnector[aux.Connector] = append(byConnector[aux.Connector], alias)
	}

	g := &Graph{
		Connectors:  c.Connectors,
		Auxiliaries: c.Auxiliaries,
		Proxies:     make(map[string]ProxyNode),
		ChannelOf:   make(map[string]string),
		ProxyOf:     make(map[string]string),
	}

	for connector, auxes := range byConnector {
		if len(auxes) < 2 {
			g.ChannelOf[auxes[0]] = connector
			continue
		}

		// Deterministic aux ordering keeps the rewrite reproducible.
		sort.Strings(auxes)
		proxyAlias := fmt.Sprintf("proxy-%s", connector)
		if _, taken := c.Auxiliaries[proxyAlias]; taken {
			return nil, fmt.Errorf("cannot synthesize proxy '%s': alias already in use", proxyAlias)
		}
		g.Proxies[proxyAlias] = ProxyNode{
			Alias:     proxyAlias,
			Connector: connector,
			AuxList:   auxes,
		}
		for _, aux := range auxes {
			g.ProxyOf[aux] = proxyAlias
		}
	}

	return g, nil
}

// SortedAuxAliases returns the auxiliary aliases in deterministic order,
// for stable session bring-up and printing.
func (g *Graph) SortedAuxAliases() []string {
	aliases := make([]string, 0, len(g.Auxiliaries))
	for alias := range g.Auxiliaries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// SortedProxyAliases returns the synthesized proxy aliases in
// deterministic order.
func (g *Graph) SortedProxyAliases() []string {
	aliases := make([]string, 0, len(g.Proxies))
	for alias := range g.Proxies {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
