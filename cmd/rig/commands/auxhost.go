package commands

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/internal/config"
	"github.com/dyluth/rig/internal/coordinator"
)

var (
	auxHostConfigPath string
	auxHostAlias      string
)

// auxHostCmd is the subprocess side of process isolation: the parent
// facade launches `rig aux-host` and speaks the queue-pair protocol over
// stdin/stdout. Hidden because users never run it by hand.
var auxHostCmd = &cobra.Command{
	Use:    "aux-host",
	Hidden: true,
	Short:  "Host one auxiliary in this process, driven over stdio",
	RunE:   runAuxHost,
}

func init() {
	auxHostCmd.Flags().StringVar(&auxHostConfigPath, "config", "rig.yml", "Path to the rig configuration")
	auxHostCmd.Flags().StringVar(&auxHostAlias, "aux", "", "Alias of the auxiliary to host")
	rootCmd.AddCommand(auxHostCmd)
}

func runAuxHost(cmd *cobra.Command, args []string) error {
	if auxHostAlias == "" {
		return fmt.Errorf("--aux is required")
	}

	cfg, err := config.Load(auxHostConfigPath)
	if err != nil {
		return err
	}

	h, err := coordinator.HostHandler(cfg, auxHostAlias)
	if err != nil {
		return err
	}

	// Stdout carries the reply stream; anything else must go to stderr.
	log.SetOutput(os.Stderr)

	return auxiliary.RunHost(auxHostAlias, h, os.Stdin, os.Stdout)
}
