package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/time/rate"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/retry"
)

// BedrockConfig holds Bedrock Converse parameters
type BedrockConfig struct {
	Model             string  `json:"model"`
	Region            string  `json:"region"`
	Temperature       float32 `json:"temperature"`
	MaxTokens         int32   `json:"max_tokens"`
	TopP              float32 `json:"top_p"`
	RequestsPerSecond float64 `json:"-"`
}

// converseAPI is the part of the Bedrock runtime client the provider uses
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider calls models hosted on AWS Bedrock through the Converse API
type BedrockProvider struct {
	cfg     BedrockConfig
	client  converseAPI
	limiter *rate.Limiter
}

// NewBedrockProvider creates a provider using the default AWS credential chain
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrockProvider(client converseAPI, cfg BedrockConfig) *BedrockProvider {
	p := &BedrockProvider{cfg: cfg, client: client}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Kind returns "bedrock"
func (p *BedrockProvider) Kind() string {
	return "bedrock"
}

// Fingerprint serializes the generation parameters
func (p *BedrockProvider) Fingerprint() (string, error) {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		BedrockConfig
	}{p.Kind(), p.cfg})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *BedrockProvider) inferenceConfig(stop []string) *types.InferenceConfiguration {
	ic := &types.InferenceConfiguration{StopSequences: stop}
	if p.cfg.MaxTokens > 0 {
		ic.MaxTokens = aws.Int32(p.cfg.MaxTokens)
	}
	if p.cfg.Temperature > 0 {
		ic.Temperature = aws.Float32(p.cfg.Temperature)
	}
	if p.cfg.TopP > 0 {
		ic.TopP = aws.Float32(p.cfg.TopP)
	}
	return ic
}

// Generate sends each prompt as a single user turn
func (p *BedrockProvider) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	res := &Result{Generations: make([][]Generation, 0, len(prompts))}
	var usage TokenUsage

	for _, prompt := range prompts {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		config.DebugLog("[Bedrock] Sending prompt of %d characters to %s", len(prompt), p.cfg.Model)

		input := &bedrockruntime.ConverseInput{
			ModelId: aws.String(p.cfg.Model),
			Messages: []types.Message{{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			}},
			InferenceConfig: p.inferenceConfig(stop),
		}
		out, err := retry.WithRetry(ctx, func() (*bedrockruntime.ConverseOutput, error) {
			return p.client.Converse(ctx, input)
		}, isThrottled, retry.DefaultRetryConfig)
		if err != nil {
			return nil, err
		}

		var sb strings.Builder
		if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
			for _, block := range msg.Value.Content {
				if text, ok := block.(*types.ContentBlockMemberText); ok {
					sb.WriteString(text.Value)
				}
			}
		}
		res.Generations = append(res.Generations, []Generation{{
			Text: sb.String(),
			Info: map[string]interface{}{"finish_reason": string(out.StopReason)},
		}})

		if out.Usage != nil {
			usage.Add(TokenUsage{
				PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
				CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
				TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
			})
		}
	}

	res.Output = usageOutput(usage)
	return res, nil
}

func isThrottled(err error) bool {
	return retry.Is429Error(err) || strings.Contains(err.Error(), "ThrottlingException")
}
