// Intesis-cfg is a setup and diagnostics utility for Intesis WiFi AC adapters.
//
// It discovers adapters on the local network, validates credentials, reads
// and changes the climate settings, shows a live dashboard and dumps
// redacted diagnostics. Known adapters are remembered in a YAML registry;
// passwords never are.
//
// Usage:
//
//	intesis-cfg [command] [flags]
//
// See 'intesis-cfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/intesis/internal/logging"
	"github.com/muurk/intesis/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "intesis-cfg",
	Short: "Intesis WiFi AC Adapter Utility",
	Long: `A standalone utility for Intesis WiFi air conditioning adapters.

Discovers adapters on the local network, validates credentials, shows and
changes climate settings, and collects diagnostics, all over the adapter's
local HTTP API. No cloud account is needed.

Set INTESIS_LOG_LEVEL=debug to see every request sent to the adapter.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("intesis-cfg %s\n", version.Full())
	},
}
