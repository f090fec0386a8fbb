package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/logging"
)

const (
	defaultUIAddr    = "127.0.0.1:8752"
	defaultAgentAddr = "127.0.0.1:8753"
)

// envKeys maps flag names to env var suffixes (agent-addr → AGENT_ADDR).
var envKeys = strings.NewReplacer("-", "_")

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPKEEP_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPKEEP_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipkeep")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipkeep/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "clipkeep"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "config")
		}
	}

	v.SetEnvPrefix("CLIPKEEP")
	v.SetEnvKeyReplacer(envKeys)
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clipkeep.toml"
	}
	return filepath.Join(home, ".config", "clipkeep", "clipkeep.toml")
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "clipkeep.db"
	}
	return filepath.Join(dir, "clipkeep", "clipkeep.db")
}

// fileConfig is the starter document written by "config init". Keys match
// flag names so viper picks them up unchanged.
type fileConfig struct {
	Addr         string `toml:"addr" comment:"UI API listen address (gRPC + HTTP)"`
	AgentAddr    string `toml:"agent-addr" comment:"agent protocol listen address"`
	Server       string `toml:"server" comment:"address CLI commands use when no local daemon is running"`
	Token        string `toml:"token" comment:"shared secret; empty disables auth and encryption"`
	TLS          bool   `toml:"tls" comment:"serve the UI API over TLS derived from token"`
	DB           string `toml:"db" comment:"SQLite database path; empty keeps state in memory"`
	NoLocal      bool   `toml:"no-local" comment:"do not watch or write the system clipboard"`
	PollInterval string `toml:"poll-interval" comment:"clipboard polling interval"`
	LogFormat    string `toml:"log-format" comment:"auto|text|json"`
	LogLevel     string `toml:"log-level" comment:"debug|info|warn|error"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Addr:         defaultUIAddr,
		AgentAddr:    defaultAgentAddr,
		Server:       defaultUIAddr,
		DB:           defaultDBPath(),
		PollInterval: time.Second.String(),
		LogFormat:    "auto",
		LogLevel:     "info",
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the clipkeep config file",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file",
		Long: `Writes a commented clipkeep.toml holding the default value of every
setting. Without a path the file goes to $HOME/.config/clipkeep/clipkeep.toml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := writeConfig(path, defaultFileConfig(), force); err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func writeConfig(path string, cfg fileConfig, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("%s already exists (use --force to overwrite)", path)
		}
	}
	b, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o600), "write config")
}
