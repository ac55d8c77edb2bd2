package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/rig/internal/proxy"
	"github.com/dyluth/rig/internal/timespec"
)

// RigConfig represents the top-level rig.yml configuration: the connector
// and auxiliary graph the coordinator turns into live objects.
type RigConfig struct {
	Version     string               `yaml:"version"`
	FailFast    bool                 `yaml:"fail_fast,omitempty"` // Abort the whole session on any creation failure
	Connectors  map[string]Connector `yaml:"connectors"`
	Auxiliaries map[string]Auxiliary `yaml:"auxiliaries"`
	Proxy       *ProxyConfig         `yaml:"proxy,omitempty"` // Defaults applied to synthesized proxies
}

// Connector declares one transport channel instance.
type Connector struct {
	Type   string         `yaml:"type"` // Required: registry type id (e.g. "loopback", "redis")
	Params map[string]any `yaml:"params,omitempty"`
}

// Auxiliary declares one device handle bound to a connector.
type Auxiliary struct {
	Type      string `yaml:"type"`      // Required: registry type id (e.g. "com", "dut-container")
	Connector string `yaml:"connector"` // Required: alias of the connector this auxiliary drives
	AutoStart bool   `yaml:"auto_start,omitempty"`
	Isolation string `yaml:"isolation,omitempty"` // "thread" (default) or "process"
	// CreateTimeout and StopTimeout bound the lifecycle hooks, as Go
	// durations ("30s", "1m30s"). Empty picks the framework defaults.
	CreateTimeout string         `yaml:"create_timeout,omitempty"`
	StopTimeout   string         `yaml:"stop_timeout,omitempty"`
	Params        map[string]any `yaml:"params,omitempty"`
}

// ProxyConfig carries the trace settings applied to every synthesized
// proxy. Tracing is the proxy's own observability channel, independent of
// whether any downstream auxiliary logs.
type ProxyConfig struct {
	ActivateTrace   bool   `yaml:"activate_trace,omitempty"`
	TraceDir        string `yaml:"trace_dir,omitempty"`
	TraceName       string `yaml:"trace_name,omitempty"`
	StrategyTrcFile string `yaml:"strategy_trc_file,omitempty"` // "run", "test" or "testCase"
}

// Isolation modes for auxiliary workers.
const (
	IsolationThread  = "thread"
	IsolationProcess = "process"
)

// Validate performs strict validation on the configuration.
func (c *RigConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if len(c.Auxiliaries) == 0 {
		return fmt.Errorf("no auxiliaries defined")
	}

	for alias, conn := range c.Connectors {
		if err := conn.Validate(alias); err != nil {
			return err
		}
	}

	for alias, aux := range c.Auxiliaries {
		if err := aux.Validate(alias); err != nil {
			return err
		}
		if _, ok := c.Connectors[aux.Connector]; !ok {
			return fmt.Errorf("auxiliary '%s': unknown connector '%s'", alias, aux.Connector)
		}
	}

	if c.Proxy != nil {
		if err := c.Proxy.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate performs validation on a single connector declaration.
func (c *Connector) Validate(alias string) error {
	if c.Type == "" {
		return fmt.Errorf("connector '%s': type is required", alias)
	}
	return nil
}

// Validate performs validation on a single auxiliary declaration.
func (a *Auxiliary) Validate(alias string) error {
	if a.Type == "" {
		return fmt.Errorf("auxiliary '%s': type is required", alias)
	}
	if a.Connector == "" {
		return fmt.Errorf("auxiliary '%s': connector is required", alias)
	}
	if a.Isolation != "" && a.Isolation != IsolationThread && a.Isolation != IsolationProcess {
		return fmt.Errorf("auxiliary '%s': invalid isolation: %s (must be '%s' or '%s')",
			alias, a.Isolation, IsolationThread, IsolationProcess)
	}
	if _, err := timespec.Duration(a.CreateTimeout, 0); err != nil {
		return fmt.Errorf("auxiliary '%s': create_timeout: %w", alias, err)
	}
	if _, err := timespec.Duration(a.StopTimeout, 0); err != nil {
		return fmt.Errorf("auxiliary '%s': stop_timeout: %w", alias, err)
	}
	return nil
}

// Validate checks the proxy trace settings.
func (p *ProxyConfig) Validate() error {
	if !p.ActivateTrace {
		return nil
	}
	if err := p.Strategy().Validate(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return nil
}

// Strategy returns the effective trace rotation strategy.
func (p *ProxyConfig) Strategy() proxy.Strategy {
	if p.StrategyTrcFile == "" {
		return proxy.StrategyRun
	}
	return proxy.Strategy(p.StrategyTrcFile)
}

// Load reads and validates rig.yml from the specified path.
func Load(path string) (*RigConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg RigConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
