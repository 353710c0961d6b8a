// Command ledger runs and operates the commit-reveal voting ledger.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Commit-reveal voting ledger",
		SilenceUsage: true,
	}
	root.AddCommand(
		serveCommand(),
		keygenCommand(),
		digestCommand(),
		signCommand(),
		auditCommand(),
	)
	return root
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
