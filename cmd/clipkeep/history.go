package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/history"
	"go.klb.dev/clipkeep/internal/menu"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

const previewWidth = 60

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"h"},
		Short:   "List and manage clipboard history entries",
	}
	cmd.AddCommand(
		clientCommand("list", "List history entries", cobra.NoArgs,
			func(cmd *cobra.Command) {
				cmd.Aliases = []string{"ls"}
				cmd.Flags().StringP("query", "q", "", "show only entries containing this text (case-insensitive)")
				cmd.Flags().String("sort", "", "newest|oldest|pinned (default: the sortOrder setting)")
				cmd.Flags().IntP("limit", "n", 0, "show at most this many entries")
				addOutputFlag(cmd)
			},
			runHistoryList,
		),
		clientCommand("pin <id>", "Toggle the pinned flag of an entry", cobra.ExactArgs(1), nil,
			func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
				_, err := call(ctx, c, message.TogglePin{ItemID: args[0]})
				return err
			},
		),
		clientCommand("rm <id>...", "Remove entries", cobra.MinimumNArgs(1), nil,
			func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
				for _, id := range args {
					if _, err := call(ctx, c, message.RemoveFromHistory{ItemID: id}); err != nil {
						return err
					}
				}
				return nil
			},
		),
		clientCommand("clear", "Remove every history entry (snippets are kept)", cobra.NoArgs, nil,
			func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, _ []string) error {
				_, err := call(ctx, c, message.ClearHistory{})
				return err
			},
		),
	)
	return cmd
}

func runHistoryList(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}

	order := snap.Settings.SortOrder
	if s := v.GetString("sort"); s != "" {
		order = model.SortOrder(s)
		if !order.Valid() {
			return errors.Newf("invalid sort order %q", s)
		}
	}
	entries := history.SortHistory(history.FilterHistory(snap.History, v.GetString("query")), order)
	if n := v.GetInt("limit"); n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, v.GetString("output"), entries); ok {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history entries.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tPIN\tSOURCE\tCOPIED\tTEXT\n")
	for _, e := range entries {
		pin := ""
		if e.Pinned {
			pin = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, pin, e.Source, fmtAge(e.CreatedAt), oneLine(e.Text))
	}
	return tw.Flush()
}

// oneLine flattens text for a table cell.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return menu.Truncate(s, previewWidth)
}
