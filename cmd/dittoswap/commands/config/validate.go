package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
	"github.com/marmos91/dittoswap/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoSwap configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittoswap config validate

  # Validate specific config file
  dittoswap config validate --config /etc/dittoswap/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	displayPath := path
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.KeyValues(out, [][2]string{
		{"Backing device", cfg.Backing.Type},
		{"Page size", cfg.Cache.PageSize.String()},
		{"Grace period", cfg.Cache.GracePeriod.String()},
		{"Max memory", maxMemory(cfg)},
		{"API port", fmt.Sprint(cfg.ControlPlane.Port)},
		{"Log level", cfg.Logging.Level},
	})
}

// configWarnings lists settings that load fine but are probably not what
// the operator wants.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.ControlPlane.IsEnabled() && cfg.ControlPlane.JWTSecret() == "" {
		warnings = append(warnings, "JWT secret not configured: the control API is unauthenticated")
	}
	if cfg.Backing.Type == factory.TypeMemory {
		warnings = append(warnings, "memory device: written-back pages still consume process memory")
	}
	if cfg.Cache.GracePeriod == 0 {
		warnings = append(warnings, "grace period is 0 - every page is written back on the next pass")
	}
	if cfg.Cache.MaxMemory == 0 {
		warnings = append(warnings, "max_memory not set - cached pages are unbounded")
	}
	return warnings
}

func maxMemory(cfg *config.Config) string {
	if cfg.Cache.MaxMemory == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%s (%d pages)", cfg.Cache.MaxMemory, cfg.Cache.MaxPages())
}
