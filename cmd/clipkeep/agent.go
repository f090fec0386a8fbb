package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/agent"
	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/crypto"
)

func newAgentCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Attach a capture agent to the coordinator",
		Long: `Connects to a clipkeep coordinator over the agent protocol and stays
attached, reconnecting with back-off when the connection drops.

--page reports the URL of the page this agent stands for, so exclusion rules
and quick paste target it. Paste requests are applied to the local system
clipboard. With --capture, local copies are sent to the history as well.

Precedence (lowest → highest): defaults → config file → CLIPKEEP_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runAgent(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("agent-addr", defaultAgentAddr, "coordinator agent protocol address")
	f.String("token", "", "shared secret (must match the coordinator)")
	f.String("source", defaultSource(), "identifier shown in peer lists")
	f.String("page", "", "URL of the foreground page this agent reports")
	f.Bool("capture", false, "send local clipboard changes to the history")
	f.Bool("no-local", false, "do not touch the local clipboard")
	f.Duration("poll-interval", 0, "clipboard polling interval with --capture (default 1s)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runAgent(ctx context.Context, v *viper.Viper) error {
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

	var backend clip.Backend
	if !v.GetBool("no-local") {
		backend = clip.New()
		defer backend.Close()
		slog.Info("clipboard backend", "name", backend.Name())
	}

	slog.Info("clipkeep agent starting",
		"version", Version,
		"addr", v.GetString("agent-addr"),
		"source", v.GetString("source"),
		"page", v.GetString("page"),
		"encrypted", key != nil,
	)

	a := agent.New(agent.Config{
		Addr:         v.GetString("agent-addr"),
		Token:        token,
		Key:          key,
		Source:       v.GetString("source"),
		Page:         v.GetString("page"),
		Clipboard:    backend,
		Capture:      v.GetBool("capture"),
		PollInterval: v.GetDuration("poll-interval"),
	})
	err = a.Run(ctx)
	st := a.Stats()
	slog.Info("clipkeep agent stopped", "sessions", st.Sessions, "pasted", st.Pasted, "captured", st.Captured)
	return err
}
