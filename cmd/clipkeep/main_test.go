package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/rpc"
	"go.klb.dev/clipkeep/internal/store"
)

// isolate keeps the developer's config file and env out of a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "CLIPKEEP_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

// daemon serves a fresh in-memory coordinator on a loopback port.
func daemon(t *testing.T) string {
	t.Helper()
	c := coordinator.New(coordinator.Config{Store: store.NewMemory()})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	srv, err := rpc.NewServer(c, "")
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln, nil) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		_ = c.Close()
	})
	return ln.Addr().String()
}

// run executes the CLI with args against addr and returns stdout.
func run(t *testing.T, addr, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--server", addr))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_CopyPasteHistory(t *testing.T) {
	isolate(t)
	addr := daemon(t)

	_, err := run(t, addr, "", "copy", "first", "entry")
	require.NoError(t, err)
	_, err = run(t, addr, "from stdin\n", "copy", "--from", "example.com")
	require.NoError(t, err)

	out, err := run(t, addr, "", "paste")
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", out)

	out, err = run(t, addr, "", "paste", "1")
	require.NoError(t, err)
	assert.Equal(t, "first entry", out)

	out, err = run(t, addr, "", "history", "list", "-o", "json")
	require.NoError(t, err)
	var entries []model.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "example.com", entries[0].Source)
	assert.Equal(t, "cli", entries[1].Source)

	out, err = run(t, addr, "", "history", "list", "-q", "FIRST")
	require.NoError(t, err)
	assert.Contains(t, out, "first entry")
	assert.NotContains(t, out, "from stdin")

	_, err = run(t, addr, "", "history", "rm", entries[0].ID)
	require.NoError(t, err)
	_, err = run(t, addr, "", "history", "pin", entries[1].ID)
	require.NoError(t, err)
	out, err = run(t, addr, "", "history", "list", "-o", "json")
	require.NoError(t, err)
	entries = nil
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pinned)

	_, err = run(t, addr, "", "history", "clear")
	require.NoError(t, err)
	out, err = run(t, addr, "", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No history entries.")
}

func TestCLI_PasteEmptyHistory(t *testing.T) {
	isolate(t)
	addr := daemon(t)
	out, err := run(t, addr, "", "paste")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, addr, "", "paste", "first")
	require.Error(t, err)
}

func TestCLI_Snippets(t *testing.T) {
	isolate(t)
	addr := daemon(t)

	_, err := run(t, addr, "", "snippet", "add", "--title", "Sig", "Best", "regards")
	require.NoError(t, err)

	out, err := run(t, addr, "", "snippet", "list", "-o", "json")
	require.NoError(t, err)
	var sn []model.Snippet
	require.NoError(t, json.Unmarshal([]byte(out), &sn))
	require.Len(t, sn, 1)
	assert.Equal(t, "Sig", sn[0].Title)

	out, err = run(t, addr, "", "snippet", "use", sn[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Best regards", out)

	_, err = run(t, addr, "", "snippet", "add", "--title", " ", "x")
	require.Error(t, err)
}

func TestCLI_Settings(t *testing.T) {
	isolate(t)
	addr := daemon(t)

	out, err := run(t, addr, "", "settings", "set", "--max-history", "200", "--theme", "dark",
		"--add-exclude", "bank.com", "-o", "json")
	require.NoError(t, err)
	var s model.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 200, s.MaxHistorySize)
	assert.Equal(t, model.ThemeDark, s.Theme)
	assert.Equal(t, []string{"bank.com"}, s.ExcludedSites)
	assert.True(t, s.EnableQuickPaste)

	_, err = run(t, addr, "", "settings", "set", "--max-history", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "History size must be between 10 and 1000")

	out, err = run(t, addr, "", "settings", "reset", "-o", "json")
	require.NoError(t, err)
	s = model.Settings{}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, model.DefaultSettings(), s)
}

func TestCLI_ExportImport(t *testing.T) {
	isolate(t)
	src := daemon(t)
	_, err := run(t, src, "", "copy", "carry me over")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "backup.json")
	_, err = run(t, src, "", "export", file)
	require.NoError(t, err)

	dst := daemon(t)
	_, err = run(t, dst, "", "import", file)
	require.NoError(t, err)
	out, err := run(t, dst, "", "paste")
	require.NoError(t, err)
	assert.Equal(t, "carry me over", out)

	_, err = run(t, dst, "", "clear-all")
	require.Error(t, err)
	_, err = run(t, dst, "", "clear-all", "--yes")
	require.NoError(t, err)
	out, err = run(t, dst, "", "paste")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCLI_Status(t *testing.T) {
	isolate(t)
	addr := daemon(t)

	out, err := run(t, addr, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "tcp ("+addr+")")
	assert.Contains(t, out, "Watcher:")

	out, err = run(t, addr, "", "status", "-o", "json")
	require.NoError(t, err)
	var st coordinator.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.StartedAt.IsZero())
}

func TestVersion(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "clipkeep dev\n", out.String())
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clipkeep.toml")
	cfg := defaultFileConfig()
	cfg.Token = "s3cret"
	require.NoError(t, writeConfig(path, cfg, false))

	err := writeConfig(path, cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	require.NoError(t, writeConfig(path, cfg, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# UI API listen address")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, defaultUIAddr, v.GetString("addr"))
	assert.Equal(t, defaultAgentAddr, v.GetString("agent-addr"))
	assert.Equal(t, "s3cret", v.GetString("token"))
	assert.Equal(t, time.Second, v.GetDuration("poll-interval"))
}

func TestApplySettingFlags(t *testing.T) {
	newFlags := func(args ...string) *pflag.FlagSet {
		f := pflag.NewFlagSet("set", pflag.ContinueOnError)
		f.Int("max-history", 0, "")
		f.Bool("quick-paste", true, "")
		f.Bool("context-menu", true, "")
		f.String("theme", "", "")
		f.String("sort", "", "")
		f.StringSlice("exclude", nil, "")
		f.StringSlice("add-exclude", nil, "")
		f.StringSlice("remove-exclude", nil, "")
		require.NoError(t, f.Parse(args))
		return f
	}

	base := model.DefaultSettings()
	base.ExcludedSites = []string{"a.com", "b.com"}

	got, err := applySettingFlags(base, newFlags())
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = applySettingFlags(base, newFlags("--quick-paste=false", "--sort", "pinned"))
	require.NoError(t, err)
	assert.False(t, got.EnableQuickPaste)
	assert.True(t, got.EnableContextMenu)
	assert.Equal(t, model.SortPinned, got.SortOrder)

	got, err = applySettingFlags(base, newFlags("--add-exclude", "b.com,c.com", "--remove-exclude", "a.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.com", "c.com"}, got.ExcludedSites)
	assert.Equal(t, []string{"a.com", "b.com"}, base.ExcludedSites)

	got, err = applySettingFlags(base, newFlags("--exclude", "x.org"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x.org"}, got.ExcludedSites)
}

func TestPrintStructured(t *testing.T) {
	v := struct {
		MaxHistorySize int    `json:"maxHistorySize"`
		Theme          string `json:"theme"`
	}{100, "dark"}

	var buf bytes.Buffer
	ok, err := printStructured(&buf, "yaml", v)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "maxHistorySize: 100")
	assert.Contains(t, buf.String(), "theme: dark")

	buf.Reset()
	ok, err = printStructured(&buf, "json", v)
	require.True(t, ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"maxHistorySize":100,"theme":"dark"}`, buf.String())

	ok, err = printStructured(&buf, "table", v)
	assert.False(t, ok)
	assert.NoError(t, err)

	ok, err = printStructured(&buf, "xml", v)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc\n"))
	long := strings.Repeat("x", 100)
	assert.LessOrEqual(t, len([]rune(oneLine(long))), previewWidth+3)
}
