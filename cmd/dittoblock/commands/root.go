// Package commands implements the CLI commands for dittoblock service management.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/marmos91/dittoblock/cmd/dittoblock/commands/config"
	volumecmd "github.com/marmos91/dittoblock/cmd/dittoblock/commands/volume"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dittoblock",
	Short: "DittoBlock - Block storage volume manager",
	Long: `DittoBlock is a block storage control plane: it manages the lifecycle of
logical volumes over attached storage devices, with durable superblock
metadata, crash recovery, and a JWT-protected management API.

Use "dittoblock [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittoblock/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(volumecmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
