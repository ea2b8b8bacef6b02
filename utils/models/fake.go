package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/kris-hansen/promptchain/utils/errkind"
)

// FakeProvider is a deterministic provider for tests and offline pipelines.
// With Queries set it answers from the map; otherwise it answers "foo", or "bar"
// when stop sequences are supplied.
type FakeProvider struct {
	Queries map[string]string
	// Err, when set, is returned from every call
	Err error

	mu      sync.Mutex
	calls   int
	prompts []string
}

// NewFakeProvider answers from queries. A nil map selects the foo/bar answers.
func NewFakeProvider(queries map[string]string) *FakeProvider {
	return &FakeProvider{Queries: queries}
}

// Kind returns "fake"
func (f *FakeProvider) Kind() string {
	return "fake"
}

// Fingerprint serializes the canned responses
func (f *FakeProvider) Fingerprint() (string, error) {
	keys := make([]string, 0, len(f.Queries))
	for k := range f.Queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, err := json.Marshal(struct {
		Kind    string   `json:"kind"`
		Prompts []string `json:"prompts"`
	}{f.Kind(), keys})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Generate answers each prompt with one candidate
func (f *FakeProvider) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompts...)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Generations: make([][]Generation, 0, len(prompts))}
	var usage TokenUsage
	for _, p := range prompts {
		text, err := f.answer(p, stop)
		if err != nil {
			return nil, err
		}
		usage.Add(TokenUsage{
			PromptTokens:     DefaultNumTokens(p),
			CompletionTokens: DefaultNumTokens(text),
			TotalTokens:      DefaultNumTokens(p) + DefaultNumTokens(text),
		})
		res.Generations = append(res.Generations, []Generation{{Text: text}})
	}
	res.Output = usageOutput(usage)
	return res, nil
}

func (f *FakeProvider) answer(prompt string, stop []string) (string, error) {
	if f.Queries != nil {
		text, ok := f.Queries[prompt]
		if !ok {
			return "", fmt.Errorf("%w: fake provider has no response for prompt %q", errkind.InvalidArgument, prompt)
		}
		return text, nil
	}
	if len(stop) > 0 {
		return "bar", nil
	}
	return "foo", nil
}

// Calls returns how many Generate calls reached the provider
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Prompts returns every prompt received so far
func (f *FakeProvider) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
