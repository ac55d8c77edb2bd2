// Package builtin wires the built-in connector and auxiliary types into
// a registry. Kept separate from the registry itself so connector
// packages can use the registry's param helpers without an import cycle.
package builtin

import (
	"fmt"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/internal/com"
	"github.com/dyluth/rig/internal/connector/redischan"
	"github.com/dyluth/rig/internal/dutcontainer"
	"github.com/dyluth/rig/internal/registry"
	"github.com/dyluth/rig/pkg/channel"
)

// Connector type names.
const (
	ConnectorLoopback = "loopback"
	ConnectorRedis    = "redis"
)

// Auxiliary type names.
const (
	AuxCom          = "com"
	AuxDutContainer = "dut-container"
)

// Register installs every built-in type. runID tags resources created by
// container-backed auxiliaries so one session's leftovers are traceable.
func Register(r *registry.Registry, runID string) error {
	if err := r.RegisterChannel(ConnectorLoopback, nil, buildLoopback); err != nil {
		return err
	}
	if err := r.RegisterChannel(ConnectorRedis, []string{"addr", "topic"}, buildRedis); err != nil {
		return err
	}
	if err := r.RegisterHandler(AuxCom, nil, buildCom); err != nil {
		return err
	}
	if err := r.RegisterHandler(AuxDutContainer, []string{"image"}, buildDutContainer(runID)); err != nil {
		return err
	}
	return nil
}

func buildLoopback(alias string, params map[string]any) (channel.Channel, error) {
	return channel.NewLoopback(alias), nil
}

func buildRedis(alias string, params map[string]any) (channel.Channel, error) {
	addr, err := registry.StringParam(params, "addr", "")
	if err != nil {
		return nil, err
	}
	topic, err := registry.StringParam(params, "topic", "")
	if err != nil {
		return nil, err
	}
	password, err := registry.StringParam(params, "password", "")
	if err != nil {
		return nil, err
	}
	db, err := registry.IntParam(params, "db", 0)
	if err != nil {
		return nil, err
	}
	return redischan.New(alias, redischan.Config{
		Addr:     addr,
		Password: password,
		DB:       db,
		Topic:    topic,
	})
}

func buildCom(alias string, ch channel.Channel, params map[string]any) (auxiliary.Handler, error) {
	if ch == nil {
		return nil, fmt.Errorf("com %q: a connector is required", alias)
	}
	return com.NewHandler(alias, ch), nil
}

func buildDutContainer(runID string) registry.HandlerBuilder {
	return func(alias string, ch channel.Channel, params map[string]any) (auxiliary.Handler, error) {
		cfg, err := dutcontainer.ConfigFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("dut-container %q: %w", alias, err)
		}
		return dutcontainer.NewHandler(alias, runID, cfg)
	}
}
