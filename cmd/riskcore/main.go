// Command riskcore runs the risk-signal evaluation core: a cobra CLI with
// a `serve` subcommand that wires the Memory Manager, Range-Graduation
// Learner, evaluators, Recent-Trade Modulator, and Risk Coordinator behind
// an HTTP surface, grounded on cmd/cryptorun/main.go's cobra root +
// version + subcommand layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName = "riskcore"
	version = "v0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Risk-signal evaluation core",
		Version: version,
		Long: `riskcore evaluates trade risk against learned graduated-ranges and
robust-zone models, falling back to rule-based scoring when there isn't
enough history for a partition yet.`,
	}

	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
