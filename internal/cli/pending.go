package cli

import (
	"errors"
	"fmt"

	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/server"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pending <user-id>",
		Short: "Show or cancel a user's operation awaiting confirmation",
		Args:  cobra.ExactArgs(1),
		RunE:  runPending,
	}
	cmd.Flags().Bool("cancel", false, "Cancel the pending operation")
	cmd.Flags().Bool("sweep", false, "Purge expired entries first")
	RootCmd.AddCommand(cmd)
}

func runPending(cmd *cobra.Command, args []string) error {
	cancel, _ := cmd.Flags().GetBool("cancel")
	sweep, _ := cmd.Flags().GetBool("sweep")
	ctx := commandContext(cmd)

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	gate := confirm.NewGate(store)

	if sweep {
		gate.Sweep(ctx)
	}
	if cancel {
		ok, err := gate.Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("nothing to cancel")
			return nil
		}
		fmt.Println("cancelled")
		return nil
	}

	p, err := gate.Pending(ctx, args[0])
	if errors.Is(err, confirm.ErrNoPending) {
		fmt.Println("no pending operation")
		return nil
	}
	if err != nil {
		return err
	}
	if formatFlag == "text" {
		fmt.Printf("%s %s %s (expires %s)\n", p.ID, p.Operation.Type, p.Operation.Table, p.ExpiresAt.Format("15:04:05"))
		return nil
	}
	return printJSON(p)
}
