// clipkeep: clipboard history coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipkeep/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipkeep",
		Short: "Clipboard history with snippets, pinning and quick paste",
		Long: `clipkeep keeps a bounded, deduplicated history of everything you copy,
plus named snippets, and shares it with every attached context.

Run "clipkeep serve" once per desktop session. Capture agents attach with
"clipkeep agent"; the other sub-commands talk to the daemon over its local
IPC socket, or over TCP with --server.

Config file search order (first found wins):
  /etc/clipkeep/clipkeep.toml
  $HOME/.config/clipkeep/clipkeep.toml
  path supplied via --config

All flags can be set via CLIPKEEP_<FLAG> env vars or config-file keys.
Run "clipkeep config init" to write a starter file.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newAgentCmd(),
		newCopyCmd(),
		newPasteCmd(),
		newHistoryCmd(),
		newSnippetCmd(),
		newSettingsCmd(),
		newExportCmd(),
		newImportCmd(),
		newClearAllCmd(),
		newMenuCmd(),
		newQuickPasteCmd(),
		newRefreshCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipkeep %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
