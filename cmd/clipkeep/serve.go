package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipkeep/internal/agentpeer"
	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/ipc"
	"go.klb.dev/clipkeep/internal/localpeer"
	"go.klb.dev/clipkeep/internal/rpc"
	"go.klb.dev/clipkeep/internal/store"
	"go.klb.dev/clipkeep/internal/tlsconf"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard history coordinator",
		Long: `Starts the clipkeep coordinator. It owns the history, snippets and
settings, polls the system clipboard, and serves:

  - the agent protocol on --agent-addr (capture agents)
  - gRPC and HTTP/JSON on --addr (UIs and remote CLI use)
  - gRPC on the local IPC socket (CLI use on this host)

Config file search order:
  /etc/clipkeep/clipkeep.toml
  $HOME/.config/clipkeep/clipkeep.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPKEEP_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("addr", defaultUIAddr, "UI API listen address (gRPC + HTTP)")
	f.String("agent-addr", defaultAgentAddr, "agent protocol listen address")
	f.String("token", "", "shared secret (empty = no auth, no encryption)")
	f.Bool("tls", false, "serve the UI API over TLS derived from --token")
	f.String("db", defaultDBPath(), `SQLite database path ("" = in-memory)`)
	f.Bool("no-local", false, "do not watch or write the system clipboard")
	f.Duration("poll-interval", 0, "clipboard polling interval (default 1s)")
	f.String("source", defaultSource(), "name for this host in peer lists")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token := v.GetString("token")
	key, err := crypto.DeriveKey(token)
	if err != nil {
		return errors.Wrap(err, "key derivation")
	}
	var tlsCfg *tls.Config
	if v.GetBool("tls") {
		pair, err := tlsconf.New(token)
		if err != nil {
			return err
		}
		tlsCfg = pair.Server
	}

	st, err := openStore(v.GetString("db"))
	if err != nil {
		return err
	}
	defer st.Close()

	var backend clip.Backend
	if !v.GetBool("no-local") {
		backend = clip.New()
	}

	slog.Info("clipkeep starting",
		"version", Version,
		"addr", v.GetString("addr"),
		"agent_addr", v.GetString("agent-addr"),
		"db", v.GetString("db"),
		"local_clip", backend != nil,
		"encrypted", key != nil,
		"tls", tlsCfg != nil,
	)

	coord := coordinator.New(coordinator.Config{
		Store:        st,
		Clipboard:    backend,
		PollInterval: v.GetDuration("poll-interval"),
	})
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Close()

	srv, err := rpc.NewServer(coord, token)
	if err != nil {
		return err
	}

	uiLn, err := net.Listen("tcp", v.GetString("addr"))
	if err != nil {
		return errors.Wrapf(err, "listen %s", v.GetString("addr"))
	}
	agentLn, err := net.Listen("tcp", v.GetString("agent-addr"))
	if err != nil {
		_ = uiLn.Close()
		return errors.Wrapf(err, "listen %s", v.GetString("agent-addr"))
	}
	slog.Info("listening", "ui", uiLn.Addr(), "agents", agentLn.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx, uiLn, tlsCfg) })
	g.Go(func() error {
		return serveAgents(ctx, agentLn, coord, agentpeer.Options{Token: token, Key: key})
	})

	// IPC socket for CLI tools on this host.
	if ipcLn, err := ipc.Listen(); err != nil {
		slog.Warn("IPC socket unavailable", "err", err)
	} else {
		slog.Info("IPC socket listening", "path", ipc.SocketPath())
		g.Go(func() error { return srv.ServeGRPC(ctx, ipcLn) })
	}

	if backend != nil {
		lp := localpeer.New(coord.Hub(), backend, v.GetString("source"), coord.Observe)
		g.Go(func() error {
			lp.Run(ctx)
			return nil
		})
	}

	err = g.Wait()
	slog.Info("clipkeep stopped")
	return err
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	return store.OpenSQLite(path)
}

// serveAgents accepts agent connections until ctx is cancelled.
func serveAgents(ctx context.Context, ln net.Listener, coord *coordinator.Coordinator, opts agentpeer.Options) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		go agentpeer.New(conn, coord.Hub(), coord, opts).Serve(ctx)
	}
}
