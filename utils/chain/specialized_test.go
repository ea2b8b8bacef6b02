package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/promptchain/utils/models"
)

func TestSpecializedChains(t *testing.T) {
	tests := []struct {
		name   string
		build  func(models.LLM) (*ModelChain, error)
		inputs []string
		output string
	}{
		{"summarize", func(l models.LLM) (*ModelChain, error) { return NewSummarizeChain(l) }, []string{"text"}, "summary"},
		{"question answering", func(l models.LLM) (*ModelChain, error) { return NewQuestionAnsweringChain(l) }, []string{"context", "question"}, "answer"},
		{"conversation", func(l models.LLM) (*ModelChain, error) { return NewConversationChain(l) }, []string{"history", "input"}, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := models.NewFakeProvider(nil)
			c, err := tt.build(fake)
			require.NoError(t, err)
			defer c.Cancel()

			assert.Equal(t, tt.inputs, c.InputVariables())
			assert.Equal(t, tt.output, c.DefaultOutputKey())

			values := map[string]string{}
			for _, v := range tt.inputs {
				values[v] = v + " value"
			}
			out, err := NewExecutor(c).Run(context.Background(), values, nil)
			require.NoError(t, err)
			assert.Equal(t, "foo", out[tt.output])

			require.Len(t, fake.Prompts(), 1)
			for _, v := range tt.inputs {
				assert.Contains(t, fake.Prompts()[0], v+" value")
			}
		})
	}
}

func TestQuestionAnsweringPrompt(t *testing.T) {
	fake := models.NewFakeProvider(nil)
	c, err := NewQuestionAnsweringChain(fake)
	require.NoError(t, err)
	defer c.Cancel()

	_, err = NewExecutor(c).Run(context.Background(), map[string]string{
		"context":  "The sky is blue.",
		"question": "What colour is the sky?",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Answer the question based on the context below, and if the question can't be answered based on the context, say \"I don't know\"\n\n"+
		"Context: The sky is blue.\n\n---\n\nQuestion: What colour is the sky?\nAnswer:", fake.Prompts()[0])
}
