package volume

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/bytesize"
	"github.com/marmos91/dittoblock/pkg/volmgr/api"
)

var (
	createSize     string
	createPageSize uint32
	createID       string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a volume",
	Long: `Create a volume on the DittoBlock service.

Examples:
  # Create a 10 GiB volume
  dittoblock volume create vol-a --size 10Gi

  # Create with an explicit page size
  dittoblock volume create vol-b --size 1Gi --page-size 8192

  # Create with a caller-chosen id
  dittoblock volume create vol-c --size 1Gi --id 6f1e97b2-6a38-47bb-9e40-18f3f0c9d2a1`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createSize, "size", "", "Volume size (e.g. 10Gi, 512Mi) (required)")
	createCmd.Flags().Uint32Var(&createPageSize, "page-size", 4096, "Volume page size in bytes")
	createCmd.Flags().StringVar(&createID, "id", "", "Volume id (default: generated server-side)")
	_ = createCmd.MarkFlagRequired("size")
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	size, err := bytesize.ParseByteSize(createSize)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}

	req := api.CreateVolumeRequest{
		Name:     name,
		Size:     uint64(size),
		PageSize: createPageSize,
	}

	if createID != "" {
		id, err := uuid.Parse(createID)
		if err != nil {
			return fmt.Errorf("invalid --id: %w", err)
		}
		req.ID = &id
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	stats, err := client.CreateVolume(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}

	return printOutput(os.Stdout, stats, false, "", volumeList{stats})
}
