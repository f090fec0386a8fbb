package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newMenuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Show the context menu and simulate clicks",
	}
	cmd.AddCommand(
		clientCommand("list", "Print the current context-menu items", cobra.NoArgs,
			func(cmd *cobra.Command) {
				cmd.Aliases = []string{"ls"}
				addOutputFlag(cmd)
			},
			func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
				snap, err := c.Snapshot(ctx)
				if err != nil {
					return errors.Wrap(err, "snapshot")
				}
				out := cmd.OutOrStdout()
				if ok, err := printStructured(out, v.GetString("output"), snap.Menu); ok {
					return err
				}
				tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "ID\tPARENT\tCONTEXTS\tTITLE\n")
				for _, it := range snap.Menu {
					ctxs := make([]string, len(it.Contexts))
					for i, c := range it.Contexts {
						ctxs[i] = string(c)
					}
					parent := it.ParentID
					if parent == "" {
						parent = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, parent, strings.Join(ctxs, ","), oneLine(it.Title))
				}
				return tw.Flush()
			},
		),
		clientCommand("click <item-id>", "Click a context-menu item", cobra.ExactArgs(1),
			func(cmd *cobra.Command) {
				cmd.Flags().String("selection", "", "selected text (for save-as-snippet)")
			},
			func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, args []string) error {
				resp, err := call(ctx, c, message.MenuClick{MenuItemID: args[0], SelectionText: v.GetString("selection")})
				if err != nil {
					return err
				}
				if len(resp.Data) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
				}
				return nil
			},
		),
	)
	return cmd
}

func newQuickPasteCmd() *cobra.Command {
	return clientCommand("quick-paste", "Open the quick paste overlay on the foreground page", cobra.NoArgs, nil,
		func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, _ []string) error {
			_, err := call(ctx, c, message.QuickPaste{})
			return err
		},
	)
}

func newRefreshCmd() *cobra.Command {
	return clientCommand("refresh", "Restart clipboard polling and rebuild the context menu", cobra.NoArgs, nil,
		func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, _ []string) error {
			_, err := call(ctx, c, message.Refresh{})
			return err
		},
	)
}
