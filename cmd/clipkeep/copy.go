package main

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newCopyCmd() *cobra.Command {
	cmd := clientCommand("copy [text...]", "Add text to the history (reads stdin without arguments)",
		cobra.ArbitraryArgs,
		func(cmd *cobra.Command) {
			cmd.Long = `Adds text to the clipboard history, as if it had been copied on the
page given by --from. Without arguments the text is read from stdin.

Blank text and a repeat of the newest entry are ignored.`
			cmd.Flags().String("from", "cli", "source hostname recorded with the entry")
		},
		runCopy,
	)
	return cmd
}

func runCopy(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "read stdin")
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	resp, err := call(ctx, c, message.AddToHistory{Text: text, Source: v.GetString("from")})
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		cmd.PrintErrln("unchanged (same as newest entry)")
		return nil
	}
	var e model.HistoryEntry
	if err := decodeData(resp, &e); err != nil {
		return err
	}
	cmd.PrintErrf("added %s\n", e.ID)
	return nil
}
