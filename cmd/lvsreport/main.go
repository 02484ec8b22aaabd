// Command lvsreport aggregates LVS violation logs and compares cell lists
// offline, without a running backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/server"
)

var (
	verbose bool
	log     = logger.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "lvsreport",
	Short:         "Summarise LVS violation logs and cell lists",
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		l, err := logger.New(logger.Config{Level: level, Format: "console"})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		log = l.WithComponent("lvsreport")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log each input as it is processed")
	rootCmd.AddCommand(rulesCmd, diffCmd)
}

func main() {
	defer func() { _ = log.Sync() }()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
