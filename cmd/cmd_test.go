package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/models"
)

const testConfig = `
default_model: fake
models:
  fake:
    provider: fake
  socks:
    provider: fake
    responses:
      "What is a good name for a company that makes socks?": "Sock Co"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", testConfig)
	chainPath := writeFile(t, dir, "name.yaml", `
chain:
  type: model
  model: socks
  template: "What is a good name for a company that makes {product}?"
`)

	out, err := execute(t, "", "run", chainPath, "--config", cfgPath, "--vars", "product=socks")
	require.NoError(t, err)
	assert.Equal(t, "Sock Co\n", out)
}

func TestRunCommandReadsStdin(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", testConfig)
	chainPath := writeFile(t, dir, "echo.yaml", `
chain:
  type: passthrough
  from: input
  output_key: echoed
`)

	out, err := execute(t, "piped text", "run", chainPath, "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "piped text\n", out)
}

func TestSummarizeCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", testConfig)

	out, err := execute(t, "First sentence. Second sentence. Third sentence.", "summarize", "-", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "foo\n", out)
}

func TestServeConfigCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", testConfig)

	_, err := execute(t, "", "serve", "port", "3000", "--config", cfgPath)
	require.NoError(t, err)
	_, err = execute(t, "", "serve", "openai-compat", "on", "--config", cfgPath)
	require.NoError(t, err)
	_, err = execute(t, "", "serve", "chains-dir", filepath.Join(dir, "chains"), "--config", cfgPath)
	require.NoError(t, err)

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Server.OpenAICompat)
	assert.Equal(t, filepath.Join(dir, "chains"), cfg.Server.ChainsDir)
	assert.DirExists(t, filepath.Join(dir, "chains"))
	assert.Contains(t, cfg.Models, "socks", "models survive the rewrite")

	_, err = execute(t, "", "serve", "port", "not-a-port", "--config", cfgPath)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", testConfig)
	out, err := execute(t, "", "version", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "promptchain version:")
}

func TestParseVars(t *testing.T) {
	values, err := parseVars([]string{"a=1", " b =x=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "empty": ""}, values)

	for _, bad := range []string{"novalue", "=v"} {
		_, err := parseVars([]string{bad})
		assert.ErrorIs(t, err, chain.ErrInvalidArgument, bad)
	}
}

func TestFillStdin(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		vars   []string
		want   map[string]string
	}{
		{"single variable", map[string]string{}, []string{"text"}, map[string]string{"text": "in"}},
		{"single variable already set", map[string]string{"text": "given"}, []string{"text"}, map[string]string{"text": "given"}},
		{"marked variable", map[string]string{"q": "STDIN", "c": "ctx"}, []string{"q", "c"}, map[string]string{"q": "in", "c": "ctx"}},
		{"several variables unmarked", map[string]string{"c": "ctx"}, []string{"q", "c"}, map[string]string{"c": "ctx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fillStdin(tt.values, tt.vars, "in")
			assert.Equal(t, tt.want, tt.values)
		})
	}
}

func TestReadStdin(t *testing.T) {
	text, ok, err := readStdin(strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "data", text)

	_, ok, err = readStdin(strings.NewReader(""))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnescapeStops(t *testing.T) {
	assert.Nil(t, unescapeStops(nil))
	assert.Equal(t, []string{"\n\n", "END\t"}, unescapeStops([]string{`\n\n`, `END\t`}))
}

func TestRenderValues(t *testing.T) {
	assert.Equal(t, "Final Summary", titleKey("final_summary"))

	out := renderValues(map[string]string{"text": "input here", "summary": "short"}, "summary")
	assert.Contains(t, out, "Text")
	assert.Contains(t, out, "Summary")
	assert.Less(t, strings.Index(out, "input here"), strings.Index(out, "short"), "the output comes last")
}

func TestDescribeModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	provider, note := describeModel(config.ModelSpec{Provider: "auto", Model: "gpt-4o", UseCache: true})
	assert.Equal(t, "openai-chat", provider)
	assert.Equal(t, "detected, cached, no API key", note)

	provider, note = describeModel(config.ModelSpec{Provider: "auto", Model: "mystery"})
	assert.Equal(t, "auto", provider)
	assert.Equal(t, "provider not detected", note)

	provider, note = describeModel(config.ModelSpec{Provider: "fake"})
	assert.Equal(t, "fake", provider)
	assert.Empty(t, note)
}

func TestWriteModels(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "key")
	cfg := config.DefaultConfig()
	cfg.DefaultModel = "chat"
	cfg.Models["chat"] = config.ModelSpec{Provider: "openai-chat", Model: "gpt-4o"}
	cfg.Models["local"] = config.ModelSpec{Provider: "fake"}

	var buf bytes.Buffer
	writeConfiguredModels(&buf, cfg)
	out := buf.String()
	assert.Contains(t, out, "openai-chat/gpt-4o")
	assert.Less(t, strings.Index(out, "chat"), strings.Index(out, "local"))

	buf.Reset()
	writeKnownModels(&buf, models.GetRegistry())
	assert.Contains(t, buf.String(), "gemini-2.5-pro")
}
