// Package volume implements volume management subcommands backed by the
// management API.
package volume

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/cli/output"
	"github.com/marmos91/dittoblock/pkg/apiclient"
)

var (
	serverURL    string
	token        string
	outputFormat string
)

// Cmd is the volume subcommand.
var Cmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
	Long: `Manage volumes on a running DittoBlock service.

All subcommands talk to the management API and need a token, either via
--token or the DITTOBLOCK_TOKEN environment variable. Mint one with
'dittoblock token'.

Subcommands:
  create  Create a volume
  remove  Remove a volume
  list    List volumes
  stats   Show volume or service statistics`,
}

func init() {
	Cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Management API base URL")
	Cmd.PersistentFlags().StringVar(&token, "token", "", "API token (default: $DITTOBLOCK_TOKEN)")
	Cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")

	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(statsCmd)
}

// getClient builds an API client from the persistent flags.
func getClient() (*apiclient.Client, error) {
	t := token
	if t == "" {
		t = os.Getenv("DITTOBLOCK_TOKEN")
	}
	if t == "" {
		return nil, fmt.Errorf("no API token provided (use --token or set DITTOBLOCK_TOKEN; mint one with 'dittoblock token')")
	}
	return apiclient.New(serverURL, t), nil
}

// printOutput renders data in the selected output format, falling back to
// the table renderer for the default format.
func printOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	p := output.NewPrinter(w, format, false)
	if p.Format() == output.FormatTable {
		if isEmpty {
			p.Println(emptyMsg)
			return nil
		}
		return p.Print(table)
	}
	return p.Print(data)
}
