// Package commands implements the goatrelay CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "goatrelay",
		Short: "GoatRelay - chat media assistant",
		Long: `GoatRelay is a chat assistant bot for WhatsApp and Discord that
searches, downloads, and relays media on request.

Examples:
  goatrelay run
  goatrelay serve --channel discord
  goatrelay serve --config ./config.yaml`,
		Version: version,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
