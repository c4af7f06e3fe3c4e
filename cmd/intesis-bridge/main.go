// Intesis-bridge exposes Intesis WiFi AC adapters to MQTT and HTTP.
//
// Each configured adapter gets a climate controller that polls the device,
// applies changes optimistically and verifies them. The bridge publishes the
// state to MQTT with Home Assistant discovery, accepts commands on MQTT
// topics, and serves a JSON API, a websocket stream and Prometheus metrics.
//
// Configuration comes from INTESIS_* environment variables (a .env file is
// loaded when present) and an optional YAML file:
//
//	intesis-bridge run --config /etc/intesis/bridge.yaml
//	INTESIS_DEVICE_HOST=192.168.1.50 INTESIS_DEVICE_PASSWORD=secret intesis-bridge
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/muurk/intesis/internal/logging"
	"github.com/muurk/intesis/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

var rootCmd = &cobra.Command{
	Use:   "intesis-bridge",
	Short: "Intesis WiFi AC to MQTT and HTTP bridge",
	Long: `Bridge Intesis WiFi air conditioning adapters to MQTT (with Home Assistant
discovery) and to a local HTTP API.

Without a subcommand the bridge runs.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBridge,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("intesis-bridge %s\n", version.Full())
	},
}
