package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/menu"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newPasteCmd() *cobra.Command {
	return clientCommand("paste [position]", "Print a history entry to stdout (newest by default)",
		cobra.MaximumNArgs(1),
		func(cmd *cobra.Command) {
			cmd.Long = `Writes the history entry at position (0 = newest) to stdout.

With --send the entry is also pushed to the foreground page, exactly as a
context-menu paste would: the active agent receives it, or every attached
context when no page is active.`
			cmd.Flags().Bool("send", false, "also deliver the entry as a paste notification")
		},
		runPaste,
	)
}

func runPaste(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, args []string) error {
	pos := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return errors.Newf("position must be a non-negative integer, got %q", args[0])
		}
		pos = n
	}

	if v.GetBool("send") {
		var r message.Request = message.PasteLast{}
		if pos > 0 {
			r = message.MenuClick{MenuItemID: menu.ItemID(pos)}
		}
		resp, err := call(ctx, c, r)
		if err != nil {
			return err
		}
		var e model.HistoryEntry
		if err := decodeData(resp, &e); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), e.Text)
		return nil
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	if pos >= len(snap.History) {
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), snap.History[pos].Text)
	return nil
}
