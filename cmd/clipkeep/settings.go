package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change settings",
	}
	cmd.AddCommand(
		clientCommand("show", "Print the current settings", cobra.NoArgs, addOutputFlag,
			func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
				snap, err := c.Snapshot(ctx)
				if err != nil {
					return errors.Wrap(err, "snapshot")
				}
				return printSettings(cmd.OutOrStdout(), v.GetString("output"), snap.Settings)
			},
		),
		clientCommand("set", "Change one or more settings", cobra.NoArgs,
			func(cmd *cobra.Command) {
				cmd.Long = `Changes the settings named by the flags given; everything else keeps
its current value. The result is validated by the coordinator.

  clipkeep settings set --max-history 200 --theme dark
  clipkeep settings set --add-exclude '*.bank.com'`
				f := cmd.Flags()
				f.Int("max-history", 0, fmt.Sprintf("history size (%d-%d)", model.MinHistorySize, model.MaxHistorySize))
				f.Bool("quick-paste", true, "enable the quick paste command")
				f.Bool("context-menu", true, "enable paste items in the context menu")
				f.String("theme", "", "auto|light|dark")
				f.String("sort", "", "newest|oldest|pinned")
				f.StringSlice("exclude", nil, "replace the excluded site patterns")
				f.StringSlice("add-exclude", nil, "add excluded site patterns")
				f.StringSlice("remove-exclude", nil, "remove excluded site patterns")
				addOutputFlag(cmd)
			},
			runSettingsSet,
		),
		clientCommand("reset", "Restore the default settings", cobra.NoArgs, addOutputFlag,
			func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
				resp, err := call(ctx, c, message.ResetSettings{})
				if err != nil {
					return err
				}
				var s model.Settings
				if err := decodeData(resp, &s); err != nil {
					return err
				}
				return printSettings(cmd.OutOrStdout(), v.GetString("output"), s)
			},
		),
	)
	return cmd
}

func runSettingsSet(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *rpc.Client, _ []string) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	s, err := applySettingFlags(snap.Settings, cmd.Flags())
	if err != nil {
		return err
	}
	resp, err := call(ctx, c, message.SaveSettings{Settings: s})
	if err != nil {
		return err
	}
	var saved model.Settings
	if err := decodeData(resp, &saved); err != nil {
		return err
	}
	return printSettings(cmd.OutOrStdout(), v.GetString("output"), saved)
}

// applySettingFlags copies the explicitly set flags onto s.
func applySettingFlags(s model.Settings, f *pflag.FlagSet) (model.Settings, error) {
	var err error
	get := func(name string, apply func()) {
		if err == nil && f.Changed(name) {
			apply()
		}
	}
	get("max-history", func() { s.MaxHistorySize, err = f.GetInt("max-history") })
	get("quick-paste", func() { s.EnableQuickPaste, err = f.GetBool("quick-paste") })
	get("context-menu", func() { s.EnableContextMenu, err = f.GetBool("context-menu") })
	get("theme", func() {
		var t string
		t, err = f.GetString("theme")
		s.Theme = model.Theme(t)
	})
	get("sort", func() {
		var o string
		o, err = f.GetString("sort")
		s.SortOrder = model.SortOrder(o)
	})
	get("exclude", func() { s.ExcludedSites, err = f.GetStringSlice("exclude") })
	get("add-exclude", func() {
		var add []string
		add, err = f.GetStringSlice("add-exclude")
		for _, p := range add {
			if !slices.Contains(s.ExcludedSites, p) {
				s.ExcludedSites = append(s.ExcludedSites, p)
			}
		}
	})
	get("remove-exclude", func() {
		var rm []string
		rm, err = f.GetStringSlice("remove-exclude")
		s.ExcludedSites = slices.DeleteFunc(slices.Clone(s.ExcludedSites), func(p string) bool {
			return slices.Contains(rm, p)
		})
	})
	return s, err
}

func printSettings(w io.Writer, format string, s model.Settings) error {
	if ok, err := printStructured(w, format, s); ok {
		return err
	}
	excluded := "-"
	if len(s.ExcludedSites) > 0 {
		excluded = strings.Join(s.ExcludedSites, ", ")
	}
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Max history:\t%d\n", s.MaxHistorySize)
	fmt.Fprintf(tw, "Quick paste:\t%t\n", s.EnableQuickPaste)
	fmt.Fprintf(tw, "Context menu:\t%t\n", s.EnableContextMenu)
	fmt.Fprintf(tw, "Theme:\t%s\n", s.Theme)
	fmt.Fprintf(tw, "Sort order:\t%s\n", s.SortOrder)
	fmt.Fprintf(tw, "Excluded sites:\t%s\n", excluded)
	return tw.Flush()
}
