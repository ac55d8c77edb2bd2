package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
version: "1.0"
connectors:
  can0:
    type: loopback
auxiliaries:
  dut:
    type: com
    connector: can0
    auto_start: true
`

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, validYAML))
		require.NoError(t, err)
		assert.Equal(t, "1.0", cfg.Version)
		assert.Len(t, cfg.Connectors, 1)
		require.Contains(t, cfg.Auxiliaries, "dut")
		aux := cfg.Auxiliaries["dut"]
		assert.Equal(t, "com", aux.Type)
		assert.Equal(t, "can0", aux.Connector)
		assert.True(t, aux.AutoStart)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: [unclosed"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *RigConfig {
		return &RigConfig{
			Version:    "1.0",
			Connectors: map[string]Connector{"can0": {Type: "loopback"}},
			Auxiliaries: map[string]Auxiliary{
				"dut": {Type: "com", Connector: "can0"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*RigConfig)
		wantErr string
	}{
		{"valid", func(c *RigConfig) {}, ""},
		{"bad version", func(c *RigConfig) { c.Version = "2.0" }, "unsupported version"},
		{"no auxiliaries", func(c *RigConfig) { c.Auxiliaries = nil }, "no auxiliaries"},
		{"connector missing type", func(c *RigConfig) {
			c.Connectors["can0"] = Connector{}
		}, "type is required"},
		{"auxiliary missing type", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Connector: "can0"}
		}, "type is required"},
		{"auxiliary missing connector", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com"}
		}, "connector is required"},
		{"auxiliary unknown connector", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com", Connector: "uart9"}
		}, "unknown connector"},
		{"bad isolation", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com", Connector: "can0", Isolation: "fiber"}
		}, "invalid isolation"},
		{"valid lifecycle timeouts", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com", Connector: "can0", CreateTimeout: "30s", StopTimeout: "1m"}
		}, ""},
		{"bad create_timeout", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com", Connector: "can0", CreateTimeout: "soon"}
		}, "create_timeout"},
		{"bad stop_timeout", func(c *RigConfig) {
			c.Auxiliaries["dut"] = Auxiliary{Type: "com", Connector: "can0", StopTimeout: "-5s"}
		}, "stop_timeout"},
		{"bad trace strategy", func(c *RigConfig) {
			c.Proxy = &ProxyConfig{ActivateTrace: true, StrategyTrcFile: "always"}
		}, "invalid trace strategy"},
		{"trace strategy ignored when trace off", func(c *RigConfig) {
			c.Proxy = &ProxyConfig{ActivateTrace: false, StrategyTrcFile: "always"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("exclusive connectors stay direct", func(t *testing.T) {
		cfg := &RigConfig{
			Version: "1.0",
			Connectors: map[string]Connector{
				"can0":  {Type: "loopback"},
				"uart1": {Type: "loopback"},
			},
			Auxiliaries: map[string]Auxiliary{
				"dut":   {Type: "com", Connector: "can0"},
				"meter": {Type: "com", Connector: "uart1"},
			},
		}

		g, err := cfg.Normalize()
		require.NoError(t, err)
		assert.Empty(t, g.Proxies)
		assert.Equal(t, "can0", g.ChannelOf["dut"])
		assert.Equal(t, "uart1", g.ChannelOf["meter"])
		assert.Empty(t, g.ProxyOf)
	})

	t.Run("shared connector synthesizes a proxy", func(t *testing.T) {
		cfg := &RigConfig{
			Version: "1.0",
			Connectors: map[string]Connector{
				"can0": {Type: "loopback"},
			},
			Auxiliaries: map[string]Auxiliary{
				"aux2": {Type: "com", Connector: "can0"},
				"aux1": {Type: "com", Connector: "can0"},
			},
		}

		g, err := cfg.Normalize()
		require.NoError(t, err)
		require.Contains(t, g.Proxies, "proxy-can0")

		node := g.Proxies["proxy-can0"]
		assert.Equal(t, "can0", node.Connector)
		assert.Equal(t, []string{"aux1", "aux2"}, node.AuxList, "aux order is deterministic")

		assert.Equal(t, "proxy-can0", g.ProxyOf["aux1"])
		assert.Equal(t, "proxy-can0", g.ProxyOf["aux2"])
		assert.NotContains(t, g.ChannelOf, "aux1", "proxied auxiliaries have no direct channel")
	})

	t.Run("mixed graph", func(t *testing.T) {
		cfg := &RigConfig{
			Version: "1.0",
			Connectors: map[string]Connector{
				"can0":  {Type: "loopback"},
				"uart1": {Type: "loopback"},
			},
			Auxiliaries: map[string]Auxiliary{
				"aux1":  {Type: "com", Connector: "can0"},
				"aux2":  {Type: "com", Connector: "can0"},
				"meter": {Type: "com", Connector: "uart1"},
			},
		}

		g, err := cfg.Normalize()
		require.NoError(t, err)
		assert.Len(t, g.Proxies, 1)
		assert.Equal(t, "uart1", g.ChannelOf["meter"])
		assert.Equal(t, []string{"aux1", "aux2", "meter"}, g.SortedAuxAliases())
		assert.Equal(t, []string{"proxy-can0"}, g.SortedProxyAliases())
	})

	t.Run("synthesized alias collision is rejected", func(t *testing.T) {
		cfg := &RigConfig{
			Version: "1.0",
			Connectors: map[string]Connector{
				"can0": {Type: "loopback"},
			},
			Auxiliaries: map[string]Auxiliary{
				"aux1":       {Type: "com", Connector: "can0"},
				"aux2":       {Type: "com", Connector: "can0"},
				"proxy-can0": {Type: "com", Connector: "can0"},
			},
		}

		_, err := cfg.Normalize()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already in use")
	})

	t.Run("invalid config fails normalization", func(t *testing.T) {
		cfg := &RigConfig{Version: "9.9"}
		_, err := cfg.Normalize()
		assert.Error(t, err)
	})
}
