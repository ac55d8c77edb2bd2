package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/rig/internal/config"
	"github.com/dyluth/rig/internal/printer"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rig.yml and show the normalized bench graph",
	Long: `Validate parses rig.yml, checks it against the schema, and prints the
normalized graph: every auxiliary, the connector it drives, and the
proxies synthesized for connectors shared by several auxiliaries.

No channel is opened and no auxiliary is started.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "rig.yml", "Path to the rig configuration")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(validateConfigPath)
	if err != nil {
		return printer.Error(
			"Invalid configuration",
			err.Error(),
			[]string{"Fix rig.yml and run 'rig validate' again"},
		)
	}

	graph, err := cfg.Normalize()
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	printer.Success("%s is valid\n\n", validateConfigPath)

	printer.Printf("Auxiliaries:\n")
	for _, alias := range graph.SortedAuxAliases() {
		aux := graph.Auxiliaries[alias]
		isolation := aux.Isolation
		if isolation == "" {
			isolation = config.IsolationThread
		}
		wiring := fmt.Sprintf("connector %s", aux.Connector)
		if proxyAlias, proxied := graph.ProxyOf[alias]; proxied {
			wiring = fmt.Sprintf("connector %s via %s", aux.Connector, proxyAlias)
		}
		printer.Printf("  %-12s %-14s %s, %s isolation, auto_start=%v\n",
			alias, aux.Type, wiring, isolation, aux.AutoStart)
	}

	if len(graph.Proxies) > 0 {
		printer.Printf("\nSynthesized proxies:\n")
		for _, alias := range graph.SortedProxyAliases() {
			node := graph.Proxies[alias]
			printer.Printf("  %-12s over %s for %v\n", alias, node.Connector, node.AuxList)
		}
	}

	return nil
}
