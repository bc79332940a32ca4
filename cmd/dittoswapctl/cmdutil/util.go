// Package cmdutil provides shared utilities for dittoswapctl commands.
package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittoswap/internal/cli/credentials"
	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/pkg/apiclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL    string
	Token        string
	Output       string
	NoColor      bool
	ContextsFile string
}

// OpenStore opens the context store named by --contexts-file, or the
// default one.
func OpenStore() (*credentials.Store, error) {
	if Flags.ContextsFile != "" {
		return credentials.Open(Flags.ContextsFile)
	}
	return credentials.OpenDefault()
}

// GetClient returns an API client for the current context. The --server
// and --token flags override the stored values; with both set no context
// is needed at all.
func GetClient() (*apiclient.Client, error) {
	if Flags.ServerURL != "" && Flags.Token != "" {
		return apiclient.New(Flags.ServerURL).WithToken(Flags.Token), nil
	}

	url, tok := Flags.ServerURL, Flags.Token

	store, err := OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open context store: %w", err)
	}
	current, err := store.Current()
	switch {
	case err == nil:
		if url == "" {
			url = current.ServerURL
		}
		if tok == "" {
			if current.Expired(time.Now()) {
				return nil, fmt.Errorf("token of context %q expired at %s. Mint a new one with 'dittoswap token' and run 'dittoswapctl context add %s --token ...'",
					store.CurrentName(), current.ExpiresAt.Local().Format(time.RFC3339), store.CurrentName())
			}
			tok = current.Token
		}
	case errors.Is(err, credentials.ErrNoCurrentContext) && url != "":
		// --server alone talks to an unauthenticated daemon.
	default:
		return nil, err
	}

	if url == "" {
		return nil, errors.New("no server URL configured. Run 'dittoswapctl context add <name> --server <url>' first")
	}

	client := apiclient.New(url)
	if tok != "" {
		client.SetToken(tok)
	}
	return client, nil
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a printer for the --output and --no-color flags.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// PrintResource prints data as JSON or YAML, or through table in table
// format.
func PrintResource(w io.Writer, data any, table output.Table) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Format() == output.FormatTable {
		return output.Render(w, table)
	}
	return p.Print(data)
}

// PrintResourceWithSuccess prints data as JSON or YAML, or successMsg in
// table format.
func PrintResourceWithSuccess(w io.Writer, data any, successMsg string) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Format() == output.FormatTable {
		p.Success(successMsg)
		return nil
	}
	return p.Print(data)
}

// PrintSuccess prints msg in table format only.
func PrintSuccess(w io.Writer, msg string) {
	p, err := Printer(w)
	if err != nil || p.Format() != output.FormatTable {
		return
	}
	p.Success(msg)
}

// WrapAPIError prefixes err with action and, for errors the user can fix,
// appends what to run next.
func WrapAPIError(action string, err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", action, err)
	}

	var hint string
	switch {
	case apiErr.IsAuthError():
		hint = "pass --token or select a context with an admin token (dittoswapctl context use)"
	case apiErr.Kind() == "region-not-initialized" && apiErr.Region != nil:
		hint = fmt.Sprintf("initialize it first with 'dittoswapctl regions init %d'", *apiErr.Region)
	case apiErr.Kind() == "short-page" || apiErr.Kind() == "oversized-page":
		hint = "the page size is shown by 'dittoswapctl status'"
	}
	if hint == "" {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %w (%s)", action, err, hint)
}
