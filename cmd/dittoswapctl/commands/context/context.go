// Package context implements context management subcommands for dittoswapctl.
package context

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/internal/cli/credentials"
	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/internal/cli/prompt"
)

// Cmd is the context subcommand.
var Cmd = &cobra.Command{
	Use:   "context",
	Short: "Manage daemon contexts",
	Long: `Manage connection contexts for multiple DittoSwap daemons.

A context is a server URL and the token to present to it. Contexts allow
you to switch between daemons, similar to kubectl contexts.`,
}

var (
	addUse    bool
	removeYes bool
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a context",
	Long: `Add a context, or replace the one with the same name.

The token is typically minted on the daemon host with 'dittoswap token'.
The first context added becomes current.

Examples:
  dittoswapctl context add local --server http://localhost:8080 --token "$TOKEN"
  dittoswapctl context add staging --server http://10.0.0.5:8080 --use`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var useCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to a different context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cmdutil.OpenStore()
		if err != nil {
			return err
		}
		if err := store.Use(args[0]); err != nil {
			return err
		}
		cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Switched to context %q", args[0]))
		return nil
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current context name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cmdutil.OpenStore()
		if err != nil {
			return err
		}
		if store.CurrentName() == "" {
			return credentials.ErrNoCurrentContext
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), store.CurrentName())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all configured contexts",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove a context",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

func init() {
	addCmd.Flags().BoolVar(&addUse, "use", false, "Make the new context current")
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Do not ask for confirmation")

	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(useCmd)
	Cmd.AddCommand(currentCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(removeCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	// --server and --token are the global flags.
	if cmdutil.Flags.ServerURL == "" {
		return fmt.Errorf("--server is required")
	}

	c := &credentials.Context{ServerURL: strings.TrimSuffix(cmdutil.Flags.ServerURL, "/")}
	if err := c.SetToken(cmdutil.Flags.Token); err != nil {
		return err
	}

	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	if err := store.Set(name, c); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	if addUse {
		if err := store.Use(name); err != nil {
			return err
		}
	}

	msg := fmt.Sprintf("Context %q saved", name)
	if store.CurrentName() == name {
		msg += " and selected"
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), msg)
	return nil
}

// contextRow is one entry of the context list.
type contextRow struct {
	Name      string    `json:"name" yaml:"name"`
	Current   bool      `json:"current" yaml:"current"`
	ServerURL string    `json:"server_url" yaml:"server_url"`
	Role      string    `json:"role,omitempty" yaml:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool      `json:"expired" yaml:"expired"`
	HasToken  bool      `json:"has_token" yaml:"has_token"`
}

type contextTable []contextRow

func (t contextTable) Headers() []string { return []string{"CURRENT", "NAME", "SERVER", "ROLE", "TOKEN"} }

func (t contextTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		marker := ""
		if r.Current {
			marker = "*"
		}
		token := "valid"
		switch {
		case !r.HasToken:
			token = "none"
		case r.Expired:
			token = "expired"
		case !r.ExpiresAt.IsZero():
			token = "expires " + r.ExpiresAt.Local().Format(time.RFC3339)
		}
		rows = append(rows, []string{marker, r.Name, r.ServerURL, r.Role, token})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	now := time.Now()
	rows := contextTable{}
	for _, name := range store.Names() {
		c, err := store.Get(name)
		if err != nil {
			return err
		}
		rows = append(rows, contextRow{
			Name:      name,
			Current:   name == store.CurrentName(),
			ServerURL: c.ServerURL,
			Role:      c.Role,
			ExpiresAt: c.ExpiresAt,
			Expired:   c.Expired(now),
			HasToken:  c.Token != "",
		})
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatTable && len(rows) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No contexts. Add one with 'dittoswapctl context add'.")
		return nil
	}
	return cmdutil.PrintResource(cmd.OutOrStdout(), rows, rows)
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	if _, err := store.Get(name); err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove context '%s'?", name), removeYes)
	if err != nil {
		if prompt.IsAborted(err) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nAborted.")
			return nil
		}
		return err
	}
	if !ok {
		return nil
	}

	if err := store.Delete(name); err != nil {
		return err
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Context %q removed", name))
	return nil
}
