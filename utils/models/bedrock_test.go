package models

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	inputs []*bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.inputs = append(f.inputs, in)
	prompt := in.Messages[0].Content[0].(*types.ContentBlockMemberText).Value
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "re: " + prompt}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(3),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(7),
		},
	}, nil
}

func TestBedrockProviderGenerate(t *testing.T) {
	client := &fakeConverse{}
	p := newBedrockProvider(client, BedrockConfig{Model: "anthropic.claude-3-haiku-20240307-v1:0", MaxTokens: 100})

	res, err := p.Generate(context.Background(), []string{"a", "b"}, []string{"Human:"})
	require.NoError(t, err)

	require.Len(t, res.Generations, 2)
	assert.Equal(t, "re: a", res.Generations[0][0].Text)
	assert.Equal(t, "re: b", res.Generations[1][0].Text)
	assert.Equal(t, "end_turn", res.Generations[0][0].Info["finish_reason"])
	assert.Equal(t, TokenUsage{PromptTokens: 6, CompletionTokens: 8, TotalTokens: 14}, res.Output["token_usage"])

	require.Len(t, client.inputs, 2)
	assert.Equal(t, []string{"Human:"}, client.inputs[0].InferenceConfig.StopSequences)
	assert.Equal(t, int32(100), aws.ToInt32(client.inputs[0].InferenceConfig.MaxTokens))
	assert.Nil(t, client.inputs[0].InferenceConfig.Temperature)
}
