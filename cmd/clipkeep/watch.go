package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipkeep/internal/rpc"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream coordinator notifications to stdout",
		Long: `Attaches as a UI context and prints every notification the coordinator
delivers (historyUpdated, snippetsUpdated, pasteText, ...) until interrupted.

With --json each notification is printed as one JSON object per line.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}
	addClientFlags(cmd)
	cmd.Flags().Bool("json", false, "print notifications as JSON lines")
	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	conn, _, err := dialDaemon(cmd, v)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := rpc.NewClient(conn).Watch(ctx, v.GetString("source"))
	if err != nil {
		return errors.Wrap(err, "watch")
	}
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for {
		n, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return errors.Wrap(err, "watch")
		}
		if v.GetBool("json") {
			if err := enc.Encode(n); err != nil {
				return err
			}
			continue
		}
		if n.Text != "" {
			fmt.Fprintf(out, "%s  %s  %s\n", time.Now().Format("15:04:05"), n.Action, oneLine(n.Text))
		} else {
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), n.Action)
		}
	}
}
