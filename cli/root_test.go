package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/engine/drop"
	"github.com/mijorus/collector/pkg/config"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := RootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--log-level", "disabled",
		"--format", "json",
	}
	cmd.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeReport(t *testing.T, out string) helpers.Report {
	t.Helper()
	var r helpers.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestSetupGlobalConfig(t *testing.T) {
	t.Run("Should layer YAML below CLI flags and inject the manager", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "collector.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte(
			"drops:\n  collect_text_to_csv: true\n  size_display: per-item\n"), 0o600))

		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags([]string{
			"--config", cfgPath, "--size-display", "hidden", "--log-level", "disabled",
		}))
		cmd.SetContext(t.Context())

		require.NoError(t, SetupGlobalConfig(cmd))
		manager := config.ManagerFromContext(cmd.Context())
		require.NotNil(t, manager)
		t.Cleanup(func() { _ = manager.Close(t.Context()) })
		cfg := manager.Get()
		assert.True(t, cfg.Drops.CollectTextToCSV)
		assert.Equal(t, "hidden", cfg.Drops.SizeDisplay)
		assert.Equal(t, config.SourceYAML, manager.Service.GetSource("drops.collect_text_to_csv"))
		assert.Equal(t, config.SourceCLI, manager.Service.GetSource("drops.size_display"))
	})

	t.Run("Should report invalid values as config errors", func(t *testing.T) {
		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--config", "", "--size-display", "sideways"}))
		cmd.SetContext(t.Context())

		err := SetupGlobalConfig(cmd)
		var cliErr *helpers.CliError
		require.ErrorAs(t, err, &cliErr)
		assert.Equal(t, helpers.CodeConfig, cliErr.Code)
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("Should load variables before configuration", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(envPath, []byte("COLLECTOR_SIZE_DISPLAY=per-item\n"), 0o600))
		t.Setenv("COLLECTOR_SIZE_DISPLAY", "")
		require.NoError(t, os.Unsetenv("COLLECTOR_SIZE_DISPLAY"))

		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--config", "", "--env-file", envPath, "--log-level", "disabled"}))
		cmd.SetContext(t.Context())
		require.NoError(t, SetupGlobalConfig(cmd))
		manager := config.ManagerFromContext(cmd.Context())
		t.Cleanup(func() { _ = manager.Close(t.Context()) })
		assert.Equal(t, "per-item", manager.Get().Drops.SizeDisplay)
	})

	t.Run("Should ignore a missing file", func(t *testing.T) {
		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}))
		_, err := loadEnvFile(cmd)
		assert.NoError(t, err)
	})

	t.Run("Should reject a directory", func(t *testing.T) {
		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--env-file", t.TempDir()}))
		_, err := loadEnvFile(cmd)
		assert.ErrorContains(t, err, "not a regular file")
	})
}

func TestExtractCLIFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		return RootCmd()
	}

	t.Run("Should only include changed flags", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--google-images"}))
		flags := map[string]any{}
		extractCLIFlags(cmd, flags)
		assert.Equal(t, map[string]any{"google-images": true}, flags)
	})

	t.Run("Should map no-download to a disabled download", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--no-download"}))
		flags := map[string]any{}
		extractCLIFlags(cmd, flags)
		assert.Equal(t, false, flags["download"])
	})

	t.Run("Should make the cache dir absolute", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--cache-dir", "rel/cache"}))
		flags := map[string]any{}
		extractCLIFlags(cmd, flags)
		path, ok := flags["cache-dir"].(string)
		require.True(t, ok)
		assert.True(t, filepath.IsAbs(path))
	})
}

func TestParseInputs(t *testing.T) {
	t.Run("Should treat existing paths as files and the rest as text", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

		inputs, err := parseInputs([]string{src, "just words", "file://" + src}, strings.NewReader(""))
		require.NoError(t, err)
		require.Len(t, inputs, 3)
		assert.False(t, inputs[0].payload.IsPlainText())
		_, isText := inputs[0].payload.Text()
		assert.False(t, isText)
		text, ok := inputs[1].payload.Text()
		require.True(t, ok)
		assert.Equal(t, "just words", text)
		_, isText = inputs[2].payload.Text()
		assert.False(t, isText)
	})

	t.Run("Should expand glob patterns into files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.md"), []byte("b"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("c"), 0o644))

		inputs, err := parseInputs([]string{filepath.Join(dir, "**", "*.md")}, strings.NewReader(""))
		require.NoError(t, err)
		require.Len(t, inputs, 2)
		for _, in := range inputs {
			assert.Equal(t, ".md", filepath.Ext(in.raw))
			_, isText := in.payload.Text()
			assert.False(t, isText)
		}
	})

	t.Run("Should keep unmatched patterns as text", func(t *testing.T) {
		pattern := filepath.Join(t.TempDir(), "*.none")
		inputs, err := parseInputs([]string{pattern, "what?"}, strings.NewReader(""))
		require.NoError(t, err)
		require.Len(t, inputs, 2)
		text, ok := inputs[0].payload.Text()
		require.True(t, ok)
		assert.Equal(t, pattern, text)
		text, ok = inputs[1].payload.Text()
		require.True(t, ok)
		assert.Equal(t, "what?", text)
	})

	t.Run("Should keep unknown file URIs as text", func(t *testing.T) {
		inputs, err := parseInputs([]string{"file:///nowhere/x.txt"}, strings.NewReader(""))
		require.NoError(t, err)
		text, ok := inputs[0].payload.Text()
		require.True(t, ok)
		assert.Equal(t, "file:///nowhere/x.txt", text)
	})

	t.Run("Should read stdin once", func(t *testing.T) {
		inputs, err := parseInputs([]string{"-"}, strings.NewReader("piped text\n"))
		require.NoError(t, err)
		text, ok := inputs[0].payload.Text()
		require.True(t, ok)
		assert.Equal(t, "piped text", text)

		_, err = parseInputs([]string{"-", "-"}, strings.NewReader("x"))
		assert.Error(t, err)
	})

	t.Run("Should detect images on stdin", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(1, 1, color.RGBA{R: 255, A: 255})
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		p := stdinPayload(buf.Bytes())
		_, isText := p.Text()
		assert.False(t, isText)
	})
}

func TestDropCommand(t *testing.T) {
	t.Run("Should drop text and files and print a JSON report", func(t *testing.T) {
		cache := t.TempDir()
		src := filepath.Join(t.TempDir(), "notes.md")
		require.NoError(t, os.WriteFile(src, []byte("# notes"), 0o644))

		out, _, err := runCLI(t, "", "drop", "--cache-dir", cache, "--window", "3", "hello there", src)
		require.NoError(t, err)
		r := decodeReport(t, out)
		assert.Equal(t, 3, r.Window)
		require.Len(t, r.Items, 2)
		assert.Equal(t, "hello there", r.Items[0].Label)
		assert.Equal(t, "icon:"+drop.IconText, r.Items[0].Preview)
		assert.Equal(t, src, r.Items[1].Path)
		assert.Empty(t, r.Failed)
		assert.DirExists(t, filepath.Join(cache, "window_3"))
	})

	t.Run("Should collect text rows when enabled", func(t *testing.T) {
		cache := t.TempDir()
		out, _, err := runCLI(t, "", "drop", "--cache-dir", cache, "--collect-text", "one", "two")
		require.NoError(t, err)
		r := decodeReport(t, out)
		require.Len(t, r.Items, 1)
		assert.True(t, r.Items[0].Collected)
		data, err := os.ReadFile(r.Items[0].Path)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\n", string(data))
	})

	t.Run("Should export and remove the scratch folder", func(t *testing.T) {
		cache := t.TempDir()
		dest := filepath.Join(t.TempDir(), "out")
		out, _, err := runCLI(t, "", "drop", "--cache-dir", cache, "--export", dest, "exported text")
		require.NoError(t, err)
		r := decodeReport(t, out)
		require.Len(t, r.Exported, 1)
		assert.FileExists(t, r.Exported[0])
		assert.NoDirExists(t, filepath.Join(cache, "window_0"))
	})

	t.Run("Should fail when every payload fails", func(t *testing.T) {
		corrupt := "\x89PNG\r\n\x1a\nnot really a png"
		_, stderr, err := runCLI(t, corrupt, "drop", "--cache-dir", t.TempDir(), "-")
		require.Error(t, err)
		var cliErr *helpers.CliError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, helpers.CodeAllFailed, cliErr.Code)
		assert.Contains(t, stderr, "No payload could be added")
	})

	t.Run("Should reject reading stdin twice", func(t *testing.T) {
		_, stderr, err := runCLI(t, "x", "drop", "--cache-dir", t.TempDir(), "-", "-")
		require.Error(t, err)
		var cliErr *helpers.CliError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, helpers.CodeInput, cliErr.Code)
		assert.Contains(t, stderr, "standard input can only be dropped once")
	})
}

func TestPasteCommand(t *testing.T) {
	t.Run("Should add clipboard text", func(t *testing.T) {
		orig := clipboardReader
		clipboardReader = func() (string, error) { return "from clipboard", nil }
		t.Cleanup(func() { clipboardReader = orig })

		out, _, err := runCLI(t, "", "paste", "--cache-dir", t.TempDir())
		require.NoError(t, err)
		r := decodeReport(t, out)
		require.Len(t, r.Items, 1)
		assert.Equal(t, "from clipboard", r.Items[0].Label)
	})

	t.Run("Should reject an empty clipboard", func(t *testing.T) {
		orig := clipboardReader
		clipboardReader = func() (string, error) { return "", nil }
		t.Cleanup(func() { clipboardReader = orig })

		_, stderr, err := runCLI(t, "", "paste", "--cache-dir", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, stderr, "clipboard is empty")
	})
}

func TestConfigShowCommand(t *testing.T) {
	t.Run("Should print flattened keys with sources", func(t *testing.T) {
		cmd := RootCmd()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetArgs([]string{"config", "show", "--config", "", "--log-level", "disabled",
			"--google-images", "--output", "json", "--sources"})
		require.NoError(t, cmd.Execute())

		var doc struct {
			Config  map[string]any    `json:"config"`
			Sources map[string]string `json:"sources"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
		assert.Equal(t, true, doc.Config["drops.google_images_support"])
		assert.Equal(t, "cli", doc.Sources["drops.google_images_support"])
		assert.Equal(t, "default", doc.Sources["drops.collect_text_to_csv"])
		assert.Equal(t, "30s", doc.Config["limits.fetch_timeout"])
	})
}
