package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/yaml.v3"

	"go.klb.dev/clipkeep/internal/ipc"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/rpc"
	"go.klb.dev/clipkeep/internal/tlsconf"
)

const callTimeout = 10 * time.Second

// defaultSource returns a human-readable identifier for this host.
func defaultSource() string {
	if v := os.Getenv("CLIPKEEP_SOURCE"); v != "" {
		return v
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// addClientFlags adds the flags every command that talks to the daemon needs.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("server", defaultUIAddr, "clipkeep UI API address (used when no local daemon socket is found)")
	f.String("token", "", "shared secret")
	f.Bool("tls", false, "connect to the UI API over TLS derived from --token")
	f.String("source", defaultSource(), "source identifier shown in peer lists")
	addConfigFlag(cmd)
}

// addOutputFlag adds --output to a command that prints structured data.
func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "output format: table|json|yaml")
}

// clientCommand builds a leaf command that talks to the daemon. run gets a
// connected client and a context bounded by callTimeout.
func clientCommand(
	use, short string,
	args cobra.PositionalArgs,
	setup func(*cobra.Command),
	run func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, args []string) error,
) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    args,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := dialDaemon(cmd, v)
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()
			return run(ctx, cmd, v, rpc.NewClient(conn), args)
		},
	}
	addClientFlags(cmd)
	if setup != nil {
		setup(cmd)
	}
	return cmd
}

// dialDaemon prefers the local IPC socket unless --server was given, and
// returns the transport it chose.
func dialDaemon(cmd *cobra.Command, v *viper.Viper) (*grpc.ClientConn, string, error) {
	source := v.GetString("source")
	if !cmd.Flags().Changed("server") && ipc.IsRunning() {
		conn, err := rpc.DialIPC(source)
		if err == nil {
			return conn, fmt.Sprintf("ipc (%s)", ipc.SocketPath()), nil
		}
	}

	addr := v.GetString("server")
	token := v.GetString("token")
	var creds credentials.TransportCredentials
	if v.GetBool("tls") {
		pair, err := tlsconf.New(token)
		if err != nil {
			return nil, "", err
		}
		creds = pair.Credentials()
	}
	conn, err := rpc.Dial(addr, creds, token, source)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("tcp (%s)", addr), nil
}

// call dispatches r and turns a failed response into an error.
func call(ctx context.Context, c *rpc.Client, r message.Request) (message.Response, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return resp, errors.Wrapf(err, "%s", r.Action())
	}
	if !resp.Success {
		return resp, errors.Newf("%s", resp.Error)
	}
	return resp, nil
}

// decodeData unpacks a response payload into dst.
func decodeData(resp message.Response, dst any) error {
	if len(resp.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(resp.Data, dst), "decode response")
}

// printStructured writes v as JSON or YAML and reports whether the format
// was one of those. For "table" it returns false and the caller prints.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the keys match the wire names.
		b, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var doc any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(doc)
	case "table", "":
		return false, nil
	}
	return true, errors.Newf("unknown output format %q", format)
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Local().Format("2006-01-02 15:04")
}
