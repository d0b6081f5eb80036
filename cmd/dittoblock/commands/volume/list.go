package volume

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/bytesize"
	"github.com/marmos91/dittoblock/pkg/volume"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	Long: `List all volumes on the DittoBlock service.

Examples:
  # List volumes as table
  dittoblock volume list

  # List as JSON
  dittoblock volume list -o json`,
	RunE: runList,
}

// volumeList renders volume stats rows as a table.
type volumeList []volume.Stats

// Headers implements TableRenderer.
func (vl volumeList) Headers() []string {
	return []string{"ID", "NAME", "SIZE", "STATE", "ORDINAL", "CHUNKS"}
}

// Rows implements TableRenderer.
func (vl volumeList) Rows() [][]string {
	rows := make([][]string, 0, len(vl))
	for _, v := range vl {
		rows = append(rows, []string{
			v.ID.String(),
			v.Name,
			bytesize.ByteSize(v.Size).String(),
			v.State,
			strconv.FormatUint(uint64(v.Ordinal), 10),
			strconv.Itoa(v.Chunks),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	volumes, err := client.ListVolumes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}

	return printOutput(os.Stdout, volumes, len(volumes) == 0, "No volumes found.", volumeList(volumes))
}
