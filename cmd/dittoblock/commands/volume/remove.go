package volume

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/cli/output"
	"github.com/marmos91/dittoblock/internal/cli/prompt"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a volume",
	Long: `Remove a volume from the DittoBlock service.

This action is irreversible. You will be prompted for confirmation unless
--force is specified.

If the volume still has requests in flight, destruction is deferred: the
volume stops accepting new requests immediately and is finalized once it
drains.

Examples:
  # Remove with confirmation
  dittoblock volume remove 6f1e97b2-6a38-47bb-9e40-18f3f0c9d2a1

  # Remove without confirmation
  dittoblock volume remove 6f1e97b2-6a38-47bb-9e40-18f3f0c9d2a1 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Skip confirmation prompt")
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid volume id: %w", err)
	}

	p := output.DefaultPrinter()
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove volume '%s'?", id), removeForce)
	if err != nil {
		if prompt.IsAborted(err) {
			p.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		p.Println("Aborted.")
		return nil
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	accepted, err := client.RemoveVolume(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to remove volume: %w", err)
	}

	if accepted {
		p.Warning(fmt.Sprintf("Volume '%s' is busy; destruction deferred until it drains", id))
	} else {
		p.Success(fmt.Sprintf("Volume '%s' removed", id))
	}
	return nil
}
