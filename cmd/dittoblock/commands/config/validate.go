package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/cli/output"
	"github.com/marmos91/dittoblock/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoBlock configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittoblock config validate

  # Validate specific config file
  dittoblock config validate --config /etc/dittoblock/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Warnings for settings that load fine but will bite at runtime
	var warnings []string

	if cfg.API.JWTSecret == "" {
		warnings = append(warnings, fmt.Sprintf("api.jwt_secret not configured - 'dittoblock start' will refuse to run (set %s)", config.EnvJWTSecret))
	}

	for _, d := range cfg.Engine.Devices {
		if _, err := os.Stat(d.Path); os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("device path does not exist: %s", d.Path))
		}
	}

	p := output.DefaultPrinter()
	p.Success(fmt.Sprintf("Configuration valid: %s", displayPath))

	if len(warnings) > 0 {
		p.Println("\nWarnings:")
		for _, w := range warnings {
			p.Warning("  - " + w)
		}
	}

	return nil
}
