package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
	"github.com/kris-hansen/promptchain/utils/retry"
)

// GoogleConfig holds Gemini generation parameters
type GoogleConfig struct {
	Model             string  `json:"model"`
	Temperature       float32 `json:"temperature"`
	MaxTokens         int32   `json:"max_tokens"`
	TopP              float32 `json:"top_p"`
	N                 int32   `json:"n"`
	RequestsPerSecond float64 `json:"-"`
}

// GoogleProvider calls Gemini models through the generative-ai client
type GoogleProvider struct {
	cfg     GoogleConfig
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGoogleProvider creates a Gemini provider
func NewGoogleProvider(ctx context.Context, apiKey string, cfg GoogleConfig) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for Google provider", errkind.InvalidOperation)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	if cfg.N <= 0 {
		cfg.N = 1
	}
	p := &GoogleProvider{cfg: cfg, client: client}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p, nil
}

// Kind returns "google"
func (p *GoogleProvider) Kind() string {
	return "google"
}

// Fingerprint serializes the generation parameters
func (p *GoogleProvider) Fingerprint() (string, error) {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		GoogleConfig
	}{p.Kind(), p.cfg})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close releases the underlying client
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Generate sends each prompt as a single content request
func (p *GoogleProvider) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	model := p.client.GenerativeModel(p.cfg.Model)
	model.SetCandidateCount(p.cfg.N)
	if p.cfg.Temperature > 0 {
		model.SetTemperature(p.cfg.Temperature)
	}
	if p.cfg.TopP > 0 {
		model.SetTopP(p.cfg.TopP)
	}
	if p.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.cfg.MaxTokens)
	}
	model.StopSequences = stop

	res := &Result{Generations: make([][]Generation, 0, len(prompts))}
	var usage TokenUsage
	for _, prompt := range prompts {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		config.DebugLog("[Google] Sending prompt of %d characters to %s", len(prompt), p.cfg.Model)

		resp, err := retry.WithRetry(ctx, func() (*genai.GenerateContentResponse, error) {
			return model.GenerateContent(ctx, genai.Text(prompt))
		}, retry.Is429Error, retry.DefaultRetryConfig)
		if err != nil {
			return nil, err
		}

		gens := make([]Generation, 0, len(resp.Candidates))
		for _, cand := range resp.Candidates {
			var sb strings.Builder
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok {
						sb.WriteString(string(text))
					}
				}
			}
			gens = append(gens, Generation{
				Text: sb.String(),
				Info: map[string]interface{}{"finish_reason": cand.FinishReason.String()},
			})
		}
		res.Generations = append(res.Generations, gens)

		if resp.UsageMetadata != nil {
			usage.Add(TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			})
		}
	}

	res.Output = usageOutput(usage)
	return res, nil
}
