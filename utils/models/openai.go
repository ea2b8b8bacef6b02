package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
	"github.com/kris-hansen/promptchain/utils/retry"
)

// OpenAIConfig holds the generation parameters shared by the OpenAI family of providers
type OpenAIConfig struct {
	Model       string                 `json:"model"`
	Temperature float32                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
	TopP        float32                `json:"top_p"`
	N           int                    `json:"n"`
	BatchSize   int                    `json:"batch_size"`
	ExtraArgs   map[string]interface{} `json:"extra_args,omitempty"`
	// RequestsPerSecond limits outgoing calls; zero means unlimited
	RequestsPerSecond float64 `json:"-"`
}

// DefaultOpenAIConfig returns the defaults for a model
func DefaultOpenAIConfig(model string) OpenAIConfig {
	return OpenAIConfig{
		Model:       model,
		Temperature: 0.7,
		MaxTokens:   256,
		TopP:        1,
		N:           1,
		BatchSize:   20,
	}
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.N <= 0 {
		c.N = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	return c
}

// openaiBase is the client plumbing shared by the completion and chat providers
type openaiBase struct {
	kind    string
	cfg     OpenAIConfig
	client  *openai.Client
	limiter *rate.Limiter
	retry   retry.RetryConfig
}

func newOpenAIBase(kind string, clientCfg openai.ClientConfig, cfg OpenAIConfig) (*openaiBase, error) {
	cfg = cfg.withDefaults()
	if len(cfg.ExtraArgs) > 0 {
		if err := validateExtraArgs(cfg.ExtraArgs); err != nil {
			return nil, err
		}
		base := clientCfg.HTTPClient
		if base == nil {
			base = http.DefaultClient
		}
		clientCfg.HTTPClient = &extraArgsDoer{base: base, extra: cfg.ExtraArgs}
	}

	b := &openaiBase{
		kind:   kind,
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		retry:  retry.DefaultRetryConfig,
	}
	if cfg.RequestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return b, nil
}

// Kind returns the provider family
func (b *openaiBase) Kind() string {
	return b.kind
}

// Fingerprint serializes the generation parameters
func (b *openaiBase) Fingerprint() (string, error) {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		OpenAIConfig
	}{b.kind, b.cfg})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *openaiBase) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// responseUsage reads the usage block from a response. Completion responses may omit it.
func responseUsage(resp interface{}) TokenUsage {
	data, err := json.Marshal(resp)
	if err != nil {
		return TokenUsage{}
	}
	var body struct {
		Usage *TokenUsage `json:"usage"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Usage == nil {
		return TokenUsage{}
	}
	return *body.Usage
}

// OpenAIProvider calls the completions endpoint, batching prompts
type OpenAIProvider struct {
	*openaiBase
}

// NewOpenAIProvider creates a completions provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL string, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for OpenAI provider", errkind.InvalidOperation)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	base, err := newOpenAIBase("openai", clientCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{base}, nil
}

// NewAzureOpenAIProvider creates a completions provider against an Azure deployment
func NewAzureOpenAIProvider(apiKey, endpoint, deployment, apiVersion string, cfg OpenAIConfig) (*OpenAIProvider, error) {
	clientCfg, err := azureClientConfig(apiKey, endpoint, deployment, apiVersion)
	if err != nil {
		return nil, err
	}
	base, err := newOpenAIBase("azure-openai", clientCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{base}, nil
}

func azureClientConfig(apiKey, endpoint, deployment, apiVersion string) (openai.ClientConfig, error) {
	if apiKey == "" || endpoint == "" {
		return openai.ClientConfig{}, fmt.Errorf("%w: Azure OpenAI requires an API key and endpoint", errkind.InvalidOperation)
	}
	clientCfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		clientCfg.APIVersion = apiVersion
	}
	if deployment != "" {
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	}
	return clientCfg, nil
}

// Generate sends prompts in batches of BatchSize and regroups the N candidates per prompt
func (p *OpenAIProvider) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	res := &Result{Generations: make([][]Generation, 0, len(prompts))}
	var usage TokenUsage

	for start := 0; start < len(prompts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(prompts))
		batch := prompts[start:end]

		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		config.DebugLog("[OpenAI] Sending batch of %d prompts to %s", len(batch), p.cfg.Model)

		req := openai.CompletionRequest{
			Model:       p.cfg.Model,
			Prompt:      batch,
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
			TopP:        p.cfg.TopP,
			N:           p.cfg.N,
			Stop:        stop,
		}
		resp, err := retry.WithRetry(ctx, func() (openai.CompletionResponse, error) {
			return p.client.CreateCompletion(ctx, req)
		}, retry.Is429Error, p.retry)
		if err != nil {
			return nil, err
		}

		choices := resp.Choices
		sort.SliceStable(choices, func(i, j int) bool { return choices[i].Index < choices[j].Index })
		grouped := make([][]Generation, len(batch))
		// choices arrive flattened, N per prompt
		for i, choice := range choices {
			idx := i / p.cfg.N
			if idx >= len(batch) {
				break
			}
			grouped[idx] = append(grouped[idx], Generation{
				Text: choice.Text,
				Info: map[string]interface{}{"finish_reason": choice.FinishReason},
			})
		}
		res.Generations = append(res.Generations, grouped...)
		usage.Add(responseUsage(resp))
	}

	res.Output = usageOutput(usage)
	return res, nil
}

// ChatProvider calls the chat completions endpoint, one request per prompt
type ChatProvider struct {
	*openaiBase
}

// NewChatProvider creates a chat provider. baseURL may be empty.
func NewChatProvider(apiKey, baseURL string, cfg OpenAIConfig) (*ChatProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for OpenAI chat provider", errkind.InvalidOperation)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	base, err := newOpenAIBase("openai-chat", clientCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatProvider{base}, nil
}

// NewAzureChatProvider creates a chat provider against an Azure deployment
func NewAzureChatProvider(apiKey, endpoint, deployment, apiVersion string, cfg OpenAIConfig) (*ChatProvider, error) {
	clientCfg, err := azureClientConfig(apiKey, endpoint, deployment, apiVersion)
	if err != nil {
		return nil, err
	}
	base, err := newOpenAIBase("azure-openai-chat", clientCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatProvider{base}, nil
}

// Generate sends each prompt as a single user message
func (p *ChatProvider) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	res := &Result{Generations: make([][]Generation, 0, len(prompts))}
	var usage TokenUsage

	for _, prompt := range prompts {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		req := openai.ChatCompletionRequest{
			Model: p.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
			TopP:        p.cfg.TopP,
			N:           p.cfg.N,
			Stop:        stop,
		}
		resp, err := retry.WithRetry(ctx, func() (openai.ChatCompletionResponse, error) {
			return p.client.CreateChatCompletion(ctx, req)
		}, retry.Is429Error, p.retry)
		if err != nil {
			return nil, err
		}

		gens := make([]Generation, 0, len(resp.Choices))
		for _, choice := range resp.Choices {
			gens = append(gens, Generation{
				Text: choice.Message.Content,
				Info: map[string]interface{}{"finish_reason": string(choice.FinishReason)},
			})
		}
		res.Generations = append(res.Generations, gens)
		usage.Add(responseUsage(resp))
	}

	res.Output = usageOutput(usage)
	return res, nil
}
