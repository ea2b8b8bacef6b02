package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
)

// NewGenerator builds the provider described by a model spec. The "auto" provider
// is resolved through the model registry.
func NewGenerator(ctx context.Context, spec config.ModelSpec) (Generator, error) {
	provider := strings.ToLower(spec.Provider)
	if provider == "auto" {
		detected, ok := GetRegistry().DetectProvider(spec.Model)
		if !ok {
			return nil, fmt.Errorf("%w: cannot detect provider for model %q", errkind.InvalidOperation, spec.Model)
		}
		config.DebugLog("[Models] Detected provider %s for model %s", detected, spec.Model)
		provider = detected
		spec.Provider = detected
	}

	switch provider {
	case "fake":
		return NewFakeProvider(spec.Responses), nil
	case "openai":
		return NewOpenAIProvider(spec.ResolveAPIKey(), spec.BaseURL, openAIConfigFromSpec(spec))
	case "openai-chat":
		return NewChatProvider(spec.ResolveAPIKey(), spec.BaseURL, openAIConfigFromSpec(spec))
	case "azure-openai":
		return NewAzureOpenAIProvider(spec.ResolveAPIKey(), spec.BaseURL, spec.Model, spec.APIVersion, openAIConfigFromSpec(spec))
	case "azure-openai-chat":
		return NewAzureChatProvider(spec.ResolveAPIKey(), spec.BaseURL, spec.Model, spec.APIVersion, openAIConfigFromSpec(spec))
	case "google":
		return NewGoogleProvider(ctx, spec.ResolveAPIKey(), GoogleConfig{
			Model:             spec.Model,
			Temperature:       float32(deref(spec.Temperature, 0)),
			MaxTokens:         int32(spec.MaxTokens),
			TopP:              float32(deref(spec.TopP, 0)),
			N:                 int32(spec.N),
			RequestsPerSecond: spec.RequestsPerSecond,
		})
	case "bedrock":
		return NewBedrockProvider(ctx, BedrockConfig{
			Model:             spec.Model,
			Region:            spec.Region,
			Temperature:       float32(deref(spec.Temperature, 0)),
			MaxTokens:         int32(spec.MaxTokens),
			TopP:              float32(deref(spec.TopP, 0)),
			RequestsPerSecond: spec.RequestsPerSecond,
		})
	default:
		if IsCompatibleVendor(provider) {
			return NewCompatibleProvider(provider, spec.ResolveAPIKey(), spec.BaseURL, openAIConfigFromSpec(spec))
		}
		return nil, fmt.Errorf("%w: unknown provider %q", errkind.InvalidOperation, spec.Provider)
	}
}

// NewFromSpec builds a Model for spec, attaching mc when the spec enables caching
func NewFromSpec(ctx context.Context, spec config.ModelSpec, mc *ModelCache) (*Model, error) {
	gen, err := NewGenerator(ctx, spec)
	if err != nil {
		return nil, err
	}
	opts := []ModelOption{WithDefaultStop(spec.Stop), WithUseCache(spec.UseCache)}
	if mc != nil {
		opts = append(opts, WithCache(mc))
	}
	return NewModel(gen, opts...), nil
}

func openAIConfigFromSpec(spec config.ModelSpec) OpenAIConfig {
	cfg := DefaultOpenAIConfig(spec.Model)
	if spec.Temperature != nil {
		cfg.Temperature = float32(*spec.Temperature)
	}
	if spec.TopP != nil {
		cfg.TopP = float32(*spec.TopP)
	}
	if spec.MaxTokens > 0 {
		cfg.MaxTokens = spec.MaxTokens
	}
	if spec.N > 0 {
		cfg.N = spec.N
	}
	if spec.BatchSize > 0 {
		cfg.BatchSize = spec.BatchSize
	}
	cfg.ExtraArgs = spec.ExtraArgs
	cfg.RequestsPerSecond = spec.RequestsPerSecond
	return cfg
}

func deref(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
