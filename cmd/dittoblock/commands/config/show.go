package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/cli/output"
	"github.com/marmos91/dittoblock/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current DittoBlock configuration.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  dittoblock config show

  # Show as JSON
  dittoblock config show --output json

  # Show specific config file
  dittoblock config show --config /etc/dittoblock/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Never print the signing secret
	if cfg.API.JWTSecret != "" {
		cfg.API.JWTSecret = "<redacted>"
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}

	return output.NewPrinter(os.Stdout, format, false).Print(cfg)
}
