package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/pkg/channel"
)

type nopHandler struct{}

func (nopHandler) CreateInstance() error { return nil }
func (nopHandler) DeleteInstance() error { return nil }
func (nopHandler) RunCommand(string, []byte) (*auxiliary.Report, error) {
	return nil, nil
}
func (nopHandler) AbortCommand() error { return nil }

func newPopulated(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.RegisterChannel("loopback", nil, func(alias string, params map[string]any) (channel.Channel, error) {
		return channel.NewLoopback(alias), nil
	}))
	require.NoError(t, r.RegisterChannel("serial", []string{"port"}, func(alias string, params map[string]any) (channel.Channel, error) {
		return channel.NewLoopback(alias), nil
	}))
	require.NoError(t, r.RegisterHandler("nop", nil, func(alias string, ch channel.Channel, params map[string]any) (auxiliary.Handler, error) {
		return nopHandler{}, nil
	}))
	return r
}

func TestRegisterDuplicates(t *testing.T) {
	r := newPopulated(t)
	assert.Error(t, r.RegisterChannel("loopback", nil, func(string, map[string]any) (channel.Channel, error) {
		return nil, nil
	}))
	assert.Error(t, r.RegisterHandler("nop", nil, func(string, channel.Channel, map[string]any) (auxiliary.Handler, error) {
		return nil, nil
	}))
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	assert.Error(t, r.RegisterChannel("", nil, nil))
	assert.Error(t, r.RegisterHandler("x", nil, nil))
}

func TestBuildChannel(t *testing.T) {
	r := newPopulated(t)

	t.Run("builds known type", func(t *testing.T) {
		ch, err := r.BuildChannel("loopback", "can0", nil)
		require.NoError(t, err)
		require.NotNil(t, ch)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.BuildChannel("visa", "gpib0", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown connector type")
	})

	t.Run("missing required param", func(t *testing.T) {
		_, err := r.BuildChannel("serial", "uart0", map[string]any{"baud": 115200})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required params: [port]")
	})

	t.Run("required param present", func(t *testing.T) {
		_, err := r.BuildChannel("serial", "uart0", map[string]any{"port": "/dev/ttyUSB0"})
		assert.NoError(t, err)
	})
}

func TestBuildHandler(t *testing.T) {
	r := newPopulated(t)

	h, err := r.BuildHandler("nop", "dut", channel.NewLoopback("c"), nil)
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = r.BuildHandler("missing", "dut", nil, nil)
	assert.Error(t, err)
}

func TestTypeListings(t *testing.T) {
	r := newPopulated(t)
	assert.Equal(t, []string{"loopback", "serial"}, r.ChannelTypes())
	assert.Equal(t, []string{"nop"}, r.HandlerTypes())
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{"addr": "localhost:6379", "db": 3, "ratio": 2.0}

	s, err := StringParam(params, "addr", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", s)

	s, err = StringParam(params, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)

	_, err = StringParam(params, "db", "")
	assert.Error(t, err, "wrong type is rejected")

	n, err := IntParam(params, "db", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = IntParam(params, "ratio", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = IntParam(params, "missing", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = IntParam(params, "addr", 0)
	assert.Error(t, err)
}

func TestEnvironment(t *testing.T) {
	env := NewEnvironment()

	f := auxiliary.NewFacade("dut", nopHandler{}, auxiliary.WithCreateTimeout(time.Second))
	env.PutAux("dut", f)
	env.PutChannel("can0", channel.NewLoopback("can0"))

	got, err := env.Aux("dut")
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = env.Aux("ghost")
	assert.Error(t, err)

	ch, err := env.Channel("can0")
	require.NoError(t, err)
	assert.NotNil(t, ch)

	_, err = env.Channel("ghost")
	assert.Error(t, err)

	assert.Equal(t, []string{"dut"}, env.AuxAliases())
}
