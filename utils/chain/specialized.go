package chain

import (
	"github.com/kris-hansen/promptchain/utils/models"
	"github.com/kris-hansen/promptchain/utils/prompt"
)

const (
	summarizeTemplate = "Write a concise summary of the following text\n\n" +
		"Text:\n{text}\n---\n\nSummary:"

	questionAnsweringTemplate = "Answer the question based on the context below, and if the question can't be answered based on the context, say \"I don't know\"\n\n" +
		"Context: {context}\n\n" +
		"---\n\n" +
		"Question: {question}\n" +
		"Answer:"

	conversationTemplate = "The following is a friendly conversation between a human and an AI. " +
		"The AI is talkative and provides lots of specific details from its context. " +
		"If the AI does not know the answer to a question, it truthfully says it does not know.\n\n" +
		"Current conversation:\n{history}\nHuman: {input}\nAI:"

	// CombineSummariesTemplate reduces chunk summaries into one
	CombineSummariesTemplate = "Given a set of summaries for a long text, use a summarization algorithm to combine them into a final summary. " +
		"The output should be a single summary that captures the main ideas of the entire text.\n\n" +
		"{input}"
)

// NewSummarizeChain summarizes the "text" value into "summary"
func NewSummarizeChain(llm models.LLM, opts ...Option) (*ModelChain, error) {
	return NewModelChain(prompt.New(summarizeTemplate), llm, append([]Option{WithOutputKey("summary")}, opts...)...)
}

// NewQuestionAnsweringChain answers "question" from "context" into "answer"
func NewQuestionAnsweringChain(llm models.LLM, opts ...Option) (*ModelChain, error) {
	return NewModelChain(prompt.New(questionAnsweringTemplate), llm, append([]Option{WithOutputKey("answer")}, opts...)...)
}

// NewConversationChain continues a "history" with the human "input" into "response"
func NewConversationChain(llm models.LLM, opts ...Option) (*ModelChain, error) {
	return NewModelChain(prompt.New(conversationTemplate), llm, append([]Option{WithOutputKey("response")}, opts...)...)
}

// NewMapReduceSummarizeChain summarizes each chunk of a long text and combines the
// chunk summaries into one.
func NewMapReduceSummarizeChain(mapLLM, reduceLLM models.LLM, cfg MapReduceConfig, opts ...Option) (*MapReduceChain, error) {
	mapChain, err := NewSummarizeChain(mapLLM, opts...)
	if err != nil {
		return nil, err
	}
	reduceChain, err := NewModelChain(prompt.New(CombineSummariesTemplate), reduceLLM, append([]Option{WithOutputKey("summary")}, opts...)...)
	if err != nil {
		return nil, err
	}
	return NewMapReduceChain(mapChain, reduceChain, cfg, opts...)
}
