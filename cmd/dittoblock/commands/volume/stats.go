package volume

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/bytesize"
	"github.com/marmos91/dittoblock/internal/cli/output"
	"github.com/marmos91/dittoblock/pkg/volmgr"
)

var statsCmd = &cobra.Command{
	Use:   "stats [id]",
	Short: "Show volume or service statistics",
	Long: `Show statistics for a volume, or service-wide statistics when no id
is given.

Examples:
  # Service-wide stats (capacity, boot count, volume count)
  dittoblock volume stats

  # Stats for one volume
  dittoblock volume stats 6f1e97b2-6a38-47bb-9e40-18f3f0c9d2a1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		stats, err := client.ServiceStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get service stats: %w", err)
		}
		return printServiceStats(stats)
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid volume id: %w", err)
	}

	stats, err := client.GetVolume(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get volume stats: %w", err)
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"ID", stats.ID.String()},
			{"Name", stats.Name},
			{"Size", bytesize.ByteSize(stats.Size).String()},
			{"Page size", strconv.FormatUint(uint64(stats.PageSize), 10)},
			{"State", stats.State},
			{"Ordinal", strconv.FormatUint(uint64(stats.Ordinal), 10)},
			{"Chunks", strconv.Itoa(stats.Chunks)},
			{"Outstanding", strconv.FormatInt(stats.Outstanding, 10)},
			{"References", strconv.FormatInt(stats.Refs, 10)},
		})
	}
}

func printServiceStats(stats volmgr.ServiceStats) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Service ID", stats.ServiceID.String()},
			{"Boot count", strconv.FormatUint(stats.BootCount, 10)},
			{"Total capacity", bytesize.ByteSize(stats.TotalCapacity).String()},
			{"Used capacity", bytesize.ByteSize(stats.UsedCapacity).String()},
			{"Volumes", strconv.Itoa(stats.Volumes)},
		})
	}
}
