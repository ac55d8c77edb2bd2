package dutcontainer

import (
	"fmt"
	"time"

	"github.com/dyluth/rig/internal/registry"
)

// ConfigFromParams decodes the YAML params block for a dut-container
// auxiliary. YAML hands over map[string]any, so everything is coerced
// here rather than at each use site.
func ConfigFromParams(params map[string]any) (Config, error) {
	var cfg Config
	var err error

	if cfg.Image, err = registry.StringParam(params, "image", ""); err != nil {
		return Config{}, err
	}
	if cfg.Memory, err = registry.StringParam(params, "memory", ""); err != nil {
		return Config{}, err
	}
	if cfg.Cmd, err = stringsParam(params, "cmd"); err != nil {
		return Config{}, err
	}
	if cfg.Ports, err = stringsParam(params, "ports"); err != nil {
		return Config{}, err
	}
	if cfg.Env, err = stringMapParam(params, "env"); err != nil {
		return Config{}, err
	}

	graceSecs, err := registry.IntParam(params, "stop_grace_s", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.StopGrace = time.Duration(graceSecs) * time.Second

	return cfg, cfg.Validate()
}

func stringsParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q: expected a list, got %T", key, raw)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("param %q[%d]: expected a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMapParam(params map[string]any, key string) (map[string]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q: expected a mapping, got %T", key, raw)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("param %q.%s: expected a string, got %T", key, k, v)
		}
		out[k] = s
	}
	return out, nil
}
