package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/rig/internal/config"
	"github.com/dyluth/rig/internal/coordinator"
	"github.com/dyluth/rig/internal/printer"
)

var (
	runConfigPath string
	runFailFast   bool
	runHold       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bring the bench up, check it, and tear it down",
	Long: `Run builds the whole bench from rig.yml: channels, proxies, and
auxiliary facades. Auto-start auxiliaries are created in deterministic
order, their states are reported, and the bench is torn down again.

With --hold the bench stays up until interrupted, for driving it from
external test tooling.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "rig.yml", "Path to the rig configuration")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Abort the whole session on the first start failure")
	runCmd.Flags().BoolVar(&runHold, "hold", false, "Keep the bench up until interrupted")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.Error(
			"Invalid configuration",
			err.Error(),
			[]string{"Run 'rig validate' for details"},
		)
	}
	if runFailFast {
		cfg.FailFast = true
	}

	session, err := coordinator.NewSession(cfg, runConfigPath)
	if err != nil {
		return printer.Error("Failed to build session", err.Error(), nil)
	}

	printer.Step("Bringing the bench up (run %.8s)\n", session.RunID())
	defer session.Teardown()

	if err := session.Setup(); err != nil {
		if cfg.FailFast {
			return printer.Error(
				"Bench startup failed",
				err.Error(),
				[]string{"Fix the failing auxiliary", "Run without --fail-fast to start the rest anyway"},
			)
		}
		printer.Warning("some auxiliaries failed to start:\n%v\n", err)
	}

	env := session.Environment()
	for _, alias := range env.AuxAliases() {
		f, lookupErr := env.Aux(alias)
		if lookupErr != nil {
			continue
		}
		if f.IsInstance() {
			printer.Success("%s is %s\n", alias, f.State())
		} else {
			printer.Warning("%s is %s\n", alias, f.State())
		}
	}
	for _, p := range session.Proxies() {
		printer.Info("proxy %s active\n", p.Alias())
	}

	if runHold {
		printer.Step("Bench is up, press Ctrl-C to tear it down\n")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		printer.Info("\n")
	}

	printer.Step("Tearing the bench down\n")
	session.Teardown()
	printer.Success("done\n")
	return nil
}
