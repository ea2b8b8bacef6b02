package models

import (
	"strings"
	"unicode/utf8"
)

// DefaultNumTokens estimates tokens as one per four characters
func DefaultNumTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

const defaultContextSize = 4097

// contextSizes lists context windows by model name prefix, longest prefix first
var contextSizes = []struct {
	prefix string
	size   int
}{
	{"gpt-4o", 128000},
	{"gpt-4-32k", 32768},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo-16k", 16384},
	{"gpt-3.5-turbo", 4096},
	{"text-davinci-003", 4097},
	{"text-davinci-002", 4097},
	{"code-davinci-002", 8001},
	{"text-curie", 2049},
	{"text-babbage", 2049},
	{"text-ada", 2049},
	{"gemini-1.5", 1048576},
	{"gemini-", 32768},
	{"anthropic.claude", 200000},
}

// ContextSize returns the context window of a model, or 4097 when unknown
func ContextSize(modelName string) int {
	name := strings.ToLower(modelName)
	for _, c := range contextSizes {
		if strings.HasPrefix(name, c.prefix) {
			return c.size
		}
	}
	return defaultContextSize
}

// MaxTokensForPrompt returns how many tokens remain for a completion after prompt
func MaxTokensForPrompt(modelName, prompt string, count func(string) int) int {
	if count == nil {
		count = DefaultNumTokens
	}
	return ContextSize(modelName) - count(prompt)
}
