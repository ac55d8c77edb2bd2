package commands

import (
	"context"

	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/rig/internal/docker"
	"github.com/dyluth/rig/internal/printer"
)

var cleanRunID string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover simulator containers",
	Long: `Clean finds containers labelled as rig-managed and force-removes them.

A session that tears down cleanly removes its own containers; clean is
for the ones a crashed or interrupted run left behind. Use --run to
restrict the sweep to one session.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanRunID, "run", "", "Only remove containers of this run ID")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	containers, err := dockerpkg.FindContainers(ctx, cli, cleanRunID)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		printer.Info("nothing to clean\n")
		return nil
	}

	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		printer.Step("removing %s (%s)\n", name, c.Labels[dockerpkg.LabelAuxAlias])
	}

	errs := dockerpkg.RemoveContainers(ctx, cli, containers)
	for _, rmErr := range errs {
		printer.Warning("%v\n", rmErr)
	}
	if len(errs) > 0 {
		return printer.Error(
			"Clean incomplete",
			"Some containers could not be removed.",
			[]string{"Check 'docker ps -a' and remove them by hand"},
		)
	}

	printer.Success("removed %d container(s)\n", len(containers))
	return nil
}
