package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/history"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newSnippetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snippet",
		Aliases: []string{"snippets", "s"},
		Short:   "List and manage named snippets",
	}
	cmd.AddCommand(
		clientCommand("list", "List snippets, newest first", cobra.NoArgs,
			func(cmd *cobra.Command) {
				cmd.Aliases = []string{"ls"}
				cmd.Flags().StringP("query", "q", "", "show only snippets whose title or text contains this")
				addOutputFlag(cmd)
			},
			runSnippetList,
		),
		clientCommand("add [text...]", "Save a snippet (reads stdin without arguments)", cobra.ArbitraryArgs,
			func(cmd *cobra.Command) {
				cmd.Flags().StringP("title", "t", "", "snippet title (required)")
			},
			runSnippetAdd,
		),
		clientCommand("rm <id>...", "Remove snippets", cobra.MinimumNArgs(1), nil,
			func(ctx context.Context, _ *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
				for _, id := range args {
					if _, err := call(ctx, c, message.RemoveSnippet{SnippetID: id}); err != nil {
						return err
					}
				}
				return nil
			},
		),
		clientCommand("use <id>", "Print a snippet and count the use", cobra.ExactArgs(1), nil,
			func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
				resp, err := call(ctx, c, message.UseSnippet{SnippetID: args[0]})
				if err != nil {
					return err
				}
				var s model.Snippet
				if err := decodeData(resp, &s); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), s.Text)
				return nil
			},
		),
	)
	return cmd
}

func runSnippetList(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	snippets := history.FilterSnippets(snap.Snippets, v.GetString("query"))

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, v.GetString("output"), snippets); ok {
		return err
	}
	if len(snippets) == 0 {
		fmt.Fprintln(out, "No snippets.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tTITLE\tUSES\tCREATED\tTEXT\n")
	for _, s := range snippets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Title, s.UseCount, fmtAge(s.CreatedAt), oneLine(s.Text))
	}
	return tw.Flush()
}

func runSnippetAdd(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "read stdin")
		}
		text = string(data)
	}
	resp, err := call(ctx, c, message.AddSnippet{Text: text, Title: v.GetString("title")})
	if err != nil {
		return err
	}
	var s model.Snippet
	if err := decodeData(resp, &s); err != nil {
		return err
	}
	cmd.PrintErrf("added %s\n", s.ID)
	return nil
}
