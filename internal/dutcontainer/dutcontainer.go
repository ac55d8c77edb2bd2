// Package dutcontainer runs a device-under-test simulator as a Docker
// container. The auxiliary owns the container's lifecycle: setup creates
// and starts it, teardown stops and removes it, and commands expose log
// retrieval and restart for tests that need to poke the simulator.
package dutcontainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/dyluth/rig/internal/auxiliary"
	dockerpkg "github.com/dyluth/rig/internal/docker"
)

// Command names understood by the handler.
const (
	// CmdLogs returns the tail of the simulator's stdout/stderr.
	CmdLogs = "logs"
	// CmdRestart restarts the container in place.
	CmdRestart = "restart"
)

const (
	setupTimeout = 60 * time.Second
	logTail      = "100"
)

// Config describes the simulator container.
type Config struct {
	// Image is the container image to run. Required.
	Image string
	// Cmd overrides the image's default command.
	Cmd []string
	// Env is injected into the container as KEY=VALUE pairs.
	Env map[string]string
	// Ports are Docker port specs, e.g. "127.0.0.1:5555:5555/tcp".
	Ports []string
	// Memory caps the container's RAM, in human units ("256m", "1g").
	// Empty means unlimited.
	Memory string
	// StopGrace is how long the container gets to exit cleanly on
	// teardown before it is killed.
	StopGrace time.Duration
}

// Validate checks the config without touching Docker.
func (c Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("dut-container: image is required")
	}
	if _, _, err := nat.ParsePortSpecs(c.Ports); err != nil {
		return fmt.Errorf("dut-container: invalid port spec: %w", err)
	}
	if c.Memory != "" {
		if _, err := units.RAMInBytes(c.Memory); err != nil {
			return fmt.Errorf("dut-container: invalid memory limit %q: %w", c.Memory, err)
		}
	}
	return nil
}

// envList flattens Env into sorted KEY=VALUE form so container creation
// is deterministic.
func (c Config) envList() []string {
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// Handler implements auxiliary.Handler for a containerised simulator.
// It is single-threaded: the simulator pushes nothing back through the
// handler, so there is no receive loop.
type Handler struct {
	alias string
	cfg   Config
	runID string

	cli         *client.Client
	containerID string
}

var _ auxiliary.Handler = (*Handler)(nil)

// NewHandler validates the config and binds it to an alias. Docker is
// not touched until CreateInstance.
func NewHandler(alias, runID string, cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{alias: alias, cfg: cfg, runID: runID}, nil
}

// CreateInstance creates and starts the simulator container.
func (h *Handler) CreateInstance() error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("dut-container %q: %w", h.alias, err)
	}

	exposed, portMap, err := nat.ParsePortSpecs(h.cfg.Ports)
	if err != nil {
		cli.Close()
		return fmt.Errorf("dut-container %q: invalid port spec: %w", h.alias, err)
	}

	var memBytes int64
	if h.cfg.Memory != "" {
		memBytes, err = units.RAMInBytes(h.cfg.Memory)
		if err != nil {
			cli.Close()
			return fmt.Errorf("dut-container %q: invalid memory limit %q: %w", h.alias, h.cfg.Memory, err)
		}
	}

	containerConfig := &container.Config{
		Image:        h.cfg.Image,
		Cmd:          h.cfg.Cmd,
		Env:          h.cfg.envList(),
		ExposedPorts: exposed,
		Labels:       dockerpkg.BuildLabels(h.runID, h.alias, h.cfg.Image),
	}
	hostConfig := &container.HostConfig{
		PortBindings: portMap,
		Resources:    container.Resources{Memory: memBytes},
	}

	name := dockerpkg.ContainerName(h.runID, h.alias)
	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		cli.Close()
		return fmt.Errorf("dut-container %q: failed to create container: %w", h.alias, err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Cleanup on start failure
		cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		cli.Close()
		return fmt.Errorf("dut-container %q: failed to start container: %w", h.alias, err)
	}

	h.cli = cli
	h.containerID = resp.ID
	log.Printf("[DutContainer] %s: started %s (%s)", h.alias, name, shortID(resp.ID))
	return nil
}

// DeleteInstance stops and removes the container. Tolerates partial
// setup and repeated calls.
func (h *Handler) DeleteInstance() error {
	if h.cli == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	grace := int(h.stopGrace().Seconds())
	if err := h.cli.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &grace}); err != nil {
		log.Printf("[DutContainer] %s: stop failed, forcing removal: %v", h.alias, err)
	}
	if err := h.cli.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil {
		h.cli.Close()
		h.cli = nil
		return fmt.Errorf("dut-container %q: failed to remove container: %w", h.alias, err)
	}

	h.cli.Close()
	h.cli = nil
	h.containerID = ""
	return nil
}

// RunCommand dispatches one named command.
func (h *Handler) RunCommand(name string, data []byte) (*auxiliary.Report, error) {
	if h.cli == nil {
		return nil, fmt.Errorf("dut-container %q: no container running", h.alias)
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	switch name {
	case CmdLogs:
		logs, err := h.containerLogs(ctx)
		if err != nil {
			return nil, err
		}
		return &auxiliary.Report{Payload: logs}, nil
	case CmdRestart:
		grace := int(h.stopGrace().Seconds())
		if err := h.cli.ContainerRestart(ctx, h.containerID, container.StopOptions{Timeout: &grace}); err != nil {
			return nil, fmt.Errorf("dut-container %q: restart failed: %w", h.alias, err)
		}
		return &auxiliary.Report{}, nil
	default:
		return nil, fmt.Errorf("dut-container %q: unknown command %q", h.alias, name)
	}
}

// AbortCommand cannot interrupt the Docker API mid-call; it only logs.
func (h *Handler) AbortCommand() error {
	log.Printf("[DutContainer] %s: abort requested, nothing in flight", h.alias)
	return nil
}

func (h *Handler) containerLogs(ctx context.Context) ([]byte, error) {
	reader, err := h.cli.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       logTail,
	})
	if err != nil {
		return nil, fmt.Errorf("dut-container %q: failed to retrieve logs: %w", h.alias, err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("dut-container %q: failed to read logs: %w", h.alias, err)
	}
	return logs, nil
}

func (h *Handler) stopGrace() time.Duration {
	if h.cfg.StopGrace > 0 {
		return h.cfg.StopGrace
	}
	return 10 * time.Second
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
