package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/pkg/config"
)

var (
	showFormat      string
	showShowSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration after defaults and DITTOSWAP_* environment
overrides are applied.

Secrets are masked unless --show-secrets is given.

Examples:
  dittoswap config show
  dittoswap config show --format json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "o", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showShowSecrets, "show-secrets", false, "Print secrets in clear")
}

const masked = "********"

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}

	if !showShowSecrets {
		maskSecrets(cfg)
	}

	format, err := output.ParseFormat(showFormat)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.JSON(cmd.OutOrStdout(), cfg)
	case output.FormatYAML:
		return output.YAML(cmd.OutOrStdout(), cfg)
	default:
		return fmt.Errorf("unsupported format for config show: %s", showFormat)
	}
}

func maskSecrets(cfg *config.Config) {
	if cfg.ControlPlane.JWT.Secret != "" {
		cfg.ControlPlane.JWT.Secret = masked
	}
	if cfg.Backing.S3.SecretAccessKey != "" {
		cfg.Backing.S3.SecretAccessKey = masked
	}
	if cfg.Backing.SQL.Postgres.Password != "" {
		cfg.Backing.SQL.Postgres.Password = masked
	}
}
