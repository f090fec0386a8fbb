package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the coordinator, its watcher and attached contexts",
		Long: `Displays the coordinator's clipboard watcher, the active page and every
attached context.

If a local daemon is running, the request is sent via the IPC Unix socket.
Pass --server to target a specific coordinator directly over TCP.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}
	addClientFlags(cmd)
	addOutputFlag(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	conn, transport, err := dialDaemon(cmd, v)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	st, err := rpc.NewClient(conn).Status(ctx)
	if err != nil {
		return errors.Wrap(err, "status")
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, v.GetString("output"), st); ok {
		return err
	}
	printStatus(out, st, v.GetString("source"), transport)
	return nil
}

func printStatus(out io.Writer, st coordinator.Status, mySource, transport string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Transport:\t%s\n", transport)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:\t%s (%s)\n", st.StartedAt.UTC().Format(time.RFC3339), fmtAge(st.StartedAt))
	}
	if st.Clipboard != "" {
		fmt.Fprintf(w, "Clipboard:\t%s\n", st.Clipboard)
	}
	if ws := st.Watcher; ws != nil {
		fmt.Fprintf(w, "Watcher:\trunning=%t checks=%d captured=%d excluded=%d read_failures=%d\n",
			ws.Running, ws.Checks, ws.Captured, ws.Excluded, ws.Failed)
	} else {
		fmt.Fprintf(w, "Watcher:\tdisabled\n")
	}
	active := st.ActiveSource
	if active == "" {
		active = "-"
	}
	fmt.Fprintf(w, "Active page:\t%s\n", active)
	fmt.Fprintf(w, "Menu builds:\t%d\n", st.MenuBuilds)
	fmt.Fprintf(w, "Notifications:\t%s\n", fmtSent(st.Sent))
	fmt.Fprintln(w)
	_ = w.Flush()

	if len(st.Peers) == 0 {
		fmt.Fprintln(out, "No contexts attached.")
		return
	}

	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\tSOURCE\tADDR\tROLE\tCONNECTED\tLAST SEEN\n")
	fmt.Fprintf(tw, "\t------\t----\t----\t---------\t---------\n")
	for _, p := range st.Peers {
		marker := ""
		if p.Source == mySource {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, p.Source, p.Addr, p.Role, fmtAge(p.ConnectedAt), fmtAge(p.LastSeen))
	}
	_ = tw.Flush()
}

func fmtSent(sent map[message.NotifyAction]int) string {
	if len(sent) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(sent))
	for k := range sent {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, sent[message.NotifyAction(k)])
	}
	return s
}
