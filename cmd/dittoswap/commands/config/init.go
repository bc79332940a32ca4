package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/internal/bytesize"
	"github.com/marmos91/dittoswap/internal/cli/prompt"
	"github.com/marmos91/dittoswap/internal/controlplane/api/auth"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
	"github.com/marmos91/dittoswap/pkg/backing/sql"
	"github.com/marmos91/dittoswap/pkg/config"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a DittoSwap configuration file with default settings.

A random JWT secret is generated so the control API starts with
authentication enabled. Use --interactive to choose the backing device and
the main cache settings.

Examples:
  # Write the default config
  dittoswap config init

  # Walk through the main settings
  dittoswap config init --interactive

  # Replace an existing file
  dittoswap config init --config /etc/dittoswap/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()
	secret, err := generateSecret()
	if err != nil {
		return err
	}
	cfg.ControlPlane.JWT.Secret = secret

	if initInteractive {
		if err := runWizard(cfg); err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("configuration cancelled")
			}
			return err
		}
	}

	if err := config.WriteConfig(cfg, path, initForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n\n", path)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Review the configuration:  dittoswap config show")
	_, _ = fmt.Fprintln(out, "  2. Start the daemon:          dittoswap start")
	_, _ = fmt.Fprintln(out, "  3. Mint an admin token:       dittoswap token --role admin")
	_, _ = fmt.Fprintf(out, "\nThe JWT secret can be overridden with the %s environment variable.\n",
		api.EnvControlPlaneSecret)
	return nil
}

// runWizard asks for the settings most deployments change.
func runWizard(cfg *config.Config) error {
	devType, err := prompt.Select("Backing device", []prompt.Option{
		{Label: "memory", Value: factory.TypeMemory, Description: "Pages written back stay in process memory"},
		{Label: "fs", Value: factory.TypeFS, Description: "One file per region in a local directory"},
		{Label: "badger", Value: factory.TypeBadger, Description: "Embedded BadgerDB key-value store"},
		{Label: "sql", Value: factory.TypeSQL, Description: "SQLite file or PostgreSQL database"},
		{Label: "s3", Value: factory.TypeS3, Description: "One object per page in an S3 bucket"},
	})
	if err != nil {
		return err
	}
	cfg.Backing.Type = devType

	switch devType {
	case factory.TypeFS:
		if cfg.Backing.FS.Path, err = prompt.Input("Region directory", "/var/lib/dittoswap/regions", prompt.NonEmpty); err != nil {
			return err
		}
	case factory.TypeBadger:
		if cfg.Backing.Badger.Path, err = prompt.Input("Database directory", "/var/lib/dittoswap/badger", prompt.NonEmpty); err != nil {
			return err
		}
	case factory.TypeSQL:
		cfg.Backing.SQL.Type = sql.DatabaseTypeSQLite
		if cfg.Backing.SQL.SQLitePath, err = prompt.Input("SQLite database file", "/var/lib/dittoswap/pages.db", prompt.NonEmpty); err != nil {
			return err
		}
	case factory.TypeS3:
		if cfg.Backing.S3.Bucket, err = prompt.Input("Bucket", "", prompt.NonEmpty); err != nil {
			return err
		}
		if cfg.Backing.S3.Region, err = prompt.Input("AWS region (empty for SDK default)", "", nil); err != nil {
			return err
		}
		if cfg.Backing.S3.Endpoint, err = prompt.Input("Endpoint (empty for AWS)", "", nil); err != nil {
			return err
		}
		cfg.Backing.S3.ForcePathStyle = cfg.Backing.S3.Endpoint != ""
	}

	pageSize, err := prompt.Int("Page size in bytes", int(cfg.Cache.PageSize), 512, 1<<20)
	if err != nil {
		return err
	}
	cfg.Cache.PageSize = bytesize.ByteSize(pageSize)

	if cfg.Cache.GracePeriod, err = prompt.Duration("Grace period", cfg.Cache.GracePeriod); err != nil {
		return err
	}

	if cfg.ControlPlane.Port, err = prompt.Int("Control API port", cfg.ControlPlane.Port, 1, 65535); err != nil {
		return err
	}

	if cfg.Metrics.Enabled, err = prompt.Confirm("Enable Prometheus metrics", false); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port, err = prompt.Int("Metrics port", cfg.Metrics.Port, 1, 65535); err != nil {
			return err
		}
	}

	own, err := prompt.Confirm("Provide your own JWT secret", false)
	if err != nil {
		return err
	}
	if own {
		if cfg.ControlPlane.JWT.Secret, err = prompt.Secret("JWT secret", auth.MinSecretLength); err != nil {
			return err
		}
	}

	return config.Validate(cfg)
}

// generateSecret returns 32 random bytes hex encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
