package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Empty(t, cfg.Models)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
default_model: davinci
models:
  davinci:
    provider: openai
    model: gpt-3.5-turbo-instruct
    temperature: 0.9
    use_cache: true
    extra_args:
      seed: 42
  fake:
    provider: fake
    responses:
      hello?: hello!
cache:
  backend: redis
  addr: localhost:6379
  ttl: 24h
server:
  port: 9000
  bearerToken: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	spec, err := cfg.GetModel("")
	require.NoError(t, err)
	assert.Equal(t, "openai", spec.Provider)
	assert.True(t, spec.UseCache)
	require.NotNil(t, spec.Temperature)
	assert.InDelta(t, 0.9, *spec.Temperature, 1e-9)
	assert.Equal(t, 42, spec.ExtraArgs["seed"])

	fake, err := cfg.GetModel("fake")
	require.NoError(t, err)
	assert.Equal(t, "hello!", fake.Responses["hello?"])

	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.BearerToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown backend", "cache:\n  backend: memcached\n", "unknown cache backend"},
		{"redis without addr", "cache:\n  backend: redis\n", "requires addr"},
		{"sqlite without dsn", "cache:\n  backend: sqlite\n", "requires dsn"},
		{"model without provider", "models:\n  x:\n    model: gpt-4\n", "has no provider"},
		{"model without name", "models:\n  x:\n    provider: openai\n", "has no model name"},
		{"bad default", "default_model: nope\nmodels: {}\n", "default_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetModelErrors(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.GetModel("")
	assert.Error(t, err)

	_, err = cfg.GetModel("missing")
	assert.Error(t, err)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("CUSTOM_KEY", "custom")

	assert.Equal(t, "inline", ModelSpec{Provider: "openai", APIKey: "inline"}.ResolveAPIKey())
	assert.Equal(t, "custom", ModelSpec{Provider: "openai", APIKeyEnv: "CUSTOM_KEY"}.ResolveAPIKey())
	assert.Equal(t, "from-env", ModelSpec{Provider: "openai"}.ResolveAPIKey())
	assert.Equal(t, "", ModelSpec{Provider: "bedrock"}.ResolveAPIKey())
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PROMPTCHAIN_CONFIG", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", GetConfigPath())
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.DefaultModel = "fake"
	cfg.Models["fake"] = ModelSpec{Provider: "fake", Responses: map[string]string{"hi": "there"}}
	cfg.Cache.TTL = time.Hour
	cfg.Server.ChainsDir = "/srv/chains"
	cfg.Server.OpenAICompat = true

	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "fake", loaded.DefaultModel)
	assert.Equal(t, cfg.Models, loaded.Models)
	assert.Equal(t, time.Hour, loaded.Cache.TTL)
	assert.Equal(t, "/srv/chains", loaded.Server.ChainsDir)
	assert.True(t, loaded.Server.OpenAICompat)
}

func TestGenerateBearerToken(t *testing.T) {
	a, err := GenerateBearerToken()
	require.NoError(t, err)
	b, err := GenerateBearerToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Could not get home directory")
	}
	t.Setenv("CHAINS_ROOT", "/srv")

	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"~", home},
		{"~/chains", filepath.Join(home, "chains")},
		{"$CHAINS_ROOT/chains/", "/srv/chains"},
		{"/absolute/./path", "/absolute/path"},
		{"~other/chains", "~other/chains"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
