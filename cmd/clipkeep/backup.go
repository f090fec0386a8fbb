package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/history"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newExportCmd() *cobra.Command {
	return clientCommand("export [file]", "Write a backup of history, snippets and settings", cobra.MaximumNArgs(1),
		func(cmd *cobra.Command) {
			cmd.Long = `Writes a JSON backup document to file, or to stdout without one. The
document can be merged back with "clipkeep import".`
		},
		func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
			snap, err := c.Snapshot(ctx)
			if err != nil {
				return errors.Wrap(err, "snapshot")
			}
			b := model.Backup{
				ClipboardHistory: snap.History,
				Snippets:         snap.Snippets,
				Settings:         snap.Settings,
				ExportDate:       time.Now().UTC(),
				Version:          model.BackupVersion,
				ExtensionName:    model.BackupName,
			}
			data, err := json.MarshalIndent(b, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encode backup")
			}
			data = append(data, '\n')
			if len(args) == 0 || args[0] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return errors.Wrap(err, "write backup")
			}
			cmd.PrintErrf("exported %d entries and %d snippets to %s\n", len(b.ClipboardHistory), len(b.Snippets), args[0])
			return nil
		},
	)
}

func newImportCmd() *cobra.Command {
	return clientCommand("import <file>", "Merge a backup into the current state", cobra.ExactArgs(1),
		func(cmd *cobra.Command) {
			cmd.Long = `Merges a backup document ("-" reads stdin). History entries are matched
by text and snippets by title; existing items win. Imported settings are
layered over the current ones.`
		},
		func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *rpc.Client, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrap(err, "read backup")
			}
			if !json.Valid(data) {
				return errors.New("backup is not valid JSON")
			}
			resp, err := call(ctx, c, message.ImportData{Data: data})
			if err != nil {
				return err
			}
			var sum history.ImportSummary
			if err := decodeData(resp, &sum); err != nil {
				return err
			}
			cmd.PrintErrf("imported %d entries and %d snippets (settings: %t)\n",
				sum.HistoryAdded, sum.SnippetsAdded, sum.SettingsImported)
			return nil
		},
	)
}

func newClearAllCmd() *cobra.Command {
	return clientCommand("clear-all", "Delete all history, snippets and settings", cobra.NoArgs,
		func(cmd *cobra.Command) {
			cmd.Flags().Bool("yes", false, "confirm the deletion")
		},
		func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
			if !v.GetBool("yes") {
				return errors.New("refusing to clear everything without --yes")
			}
			_, err := call(ctx, c, message.ClearAll{})
			return err
		},
	)
}
