package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// FindContainers lists every rig-managed container on the host, stopped
// ones included. A non-empty runID restricts the result to one session's
// containers; a crashed run leaves its simulators behind and this is how
// they are found again.
func FindContainers(ctx context.Context, cli *client.Client, runID string) ([]types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	if runID != "" {
		filter.Add("label", fmt.Sprintf("%s=%s", LabelRunID, runID))
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// RemoveContainers force-removes the given containers. Failures are
// collected per container so one stuck removal does not stop the rest.
func RemoveContainers(ctx context.Context, cli *client.Client, containers []types.Container) []error {
	var errs []error
	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", c.ID[:12], err))
		}
	}
	return errs
}
