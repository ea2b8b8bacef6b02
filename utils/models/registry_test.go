package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
)

func TestDetectProvider(t *testing.T) {
	r := NewModelRegistry()
	tests := []struct {
		model    string
		provider string
		ok       bool
	}{
		{"gpt-3.5-turbo-instruct", "openai", true},
		{"text-davinci-003", "openai", true},
		{"gpt-3.5-turbo", "openai-chat", true},
		{"gpt-4o-2024-08-06", "openai-chat", true},
		{"Gemini-1.5-Flash", "google", true},
		{"anthropic.claude-v2", "bedrock", true},
		{"fake", "fake", true},
		{"deepseek-chat", "deepseek", true},
		{"grok-4-0709", "xai", true},
		{"kimi-k2-0711-preview", "moonshot", true},
		{"llama3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, ok := r.DetectProvider(tt.model)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.provider, provider)
		})
	}
}

func TestRegistryRegisterAndValidate(t *testing.T) {
	r := NewModelRegistry()
	r.RegisterModels("local", []string{"my-model"})
	r.RegisterFamilies("local", []string{"my-"})

	assert.True(t, r.ValidateModel("local", "my-model"))
	assert.True(t, r.ValidateModel("local", "MY-other"))
	assert.False(t, r.ValidateModel("local", "gpt-4o"))
	assert.Contains(t, r.Providers(), "local")
	assert.Equal(t, []string{"my-model"}, r.GetAllModels()["local"])
}

func TestNewFromSpecFake(t *testing.T) {
	m, err := NewFromSpec(context.Background(), config.ModelSpec{
		Provider:  "auto",
		Model:     "fake",
		Responses: map[string]string{"q": "a"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", m.Kind())

	text, err := Prompt(context.Background(), m, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", text)
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.ModelSpec{Provider: "nope", Model: "x"})
	assert.ErrorIs(t, err, errkind.InvalidOperation)

	_, err = NewGenerator(context.Background(), config.ModelSpec{Provider: "auto", Model: "unknown-model"})
	assert.ErrorIs(t, err, errkind.InvalidOperation)
}

func TestMaxTokensForPrompt(t *testing.T) {
	assert.Equal(t, 4097-2, MaxTokensForPrompt("text-davinci-003", "12345678", nil))
	assert.Equal(t, 8192-1, MaxTokensForPrompt("gpt-4", "abcd", nil))
	assert.Equal(t, 4097, MaxTokensForPrompt("unknown", "", nil))
	assert.Equal(t, 2, DefaultNumTokens("ünïcödéß"))
}
