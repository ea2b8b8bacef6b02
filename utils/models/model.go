package models

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
)

var (
	// ErrStopConflict is returned when both the model defaults and the call supply stop sequences
	ErrStopConflict = fmt.Errorf("%w: stop found in both the input and default params", errkind.InvalidOperation)
	// ErrCacheUnavailable is returned when caching is requested but no cache is configured
	ErrCacheUnavailable = fmt.Errorf("%w: asked to cache, but no cache found", errkind.InvalidOperation)
	// ErrNoGenerations is returned when a model produced no candidates for a prompt
	ErrNoGenerations = fmt.Errorf("%w: model returned no generations", errkind.InvalidOperation)
)

// LLM is what chains call to generate text
type LLM interface {
	Generate(ctx context.Context, prompts []string, stop []string) (*Result, error)
}

// Generator is the raw provider call behind a Model
type Generator interface {
	// Kind names the provider family, used in logs and cache keys
	Kind() string
	// Fingerprint is a stable serialization of every parameter that affects output
	Fingerprint() (string, error)
	Generate(ctx context.Context, prompts []string, stop []string) (*Result, error)
}

// Model wraps a Generator with stop sequence merging and response caching
type Model struct {
	generator   Generator
	cache       *ModelCache
	useCache    bool
	defaultStop []string
	numTokens   func(string) int
}

// ModelOption configures a Model
type ModelOption func(*Model)

// WithCache attaches a response cache. Caching is used only when WithUseCache(true) is also set.
func WithCache(c *ModelCache) ModelOption {
	return func(m *Model) { m.cache = c }
}

// WithUseCache enables or disables the response cache for this model
func WithUseCache(use bool) ModelOption {
	return func(m *Model) { m.useCache = use }
}

// WithDefaultStop sets stop sequences applied when a call supplies none
func WithDefaultStop(stop []string) ModelOption {
	return func(m *Model) { m.defaultStop = append([]string(nil), stop...) }
}

// WithTokenCounter replaces the default length based token estimate
func WithTokenCounter(fn func(string) int) ModelOption {
	return func(m *Model) { m.numTokens = fn }
}

// NewModel wraps a generator
func NewModel(gen Generator, opts ...ModelOption) *Model {
	m := &Model{generator: gen, numTokens: DefaultNumTokens}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Kind returns the underlying provider kind
func (m *Model) Kind() string {
	return m.generator.Kind()
}

// NumTokens estimates the token count of text
func (m *Model) NumTokens(text string) int {
	return m.numTokens(text)
}

// Generate runs prompts through the provider, serving cached candidates where possible.
// The result always lists prompts in their original order.
func (m *Model) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	switch {
	case len(stop) > 0 && len(m.defaultStop) > 0:
		return nil, ErrStopConflict
	case len(stop) == 0:
		stop = m.defaultStop
	}

	if !m.useCache {
		return m.generateRaw(ctx, prompts, stop)
	}
	if m.cache == nil {
		return nil, ErrCacheUnavailable
	}

	fingerprint, err := m.fingerprint(stop)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s model: %w", m.Kind(), err)
	}
	lookup, err := m.cache.GetPrompts(ctx, fingerprint, prompts)
	if err != nil {
		return nil, err
	}

	generations := make([][]Generation, len(prompts))
	for idx, gens := range lookup.Existing {
		generations[idx] = gens
	}

	var output map[string]interface{}
	if len(lookup.MissingPrompts) > 0 {
		config.DebugLog("[Model] %s cache: %d hits, %d misses", m.Kind(), len(lookup.Existing), len(lookup.MissingPrompts))
		fresh, err := m.generateRaw(ctx, lookup.MissingPrompts, stop)
		if err != nil {
			return nil, err
		}
		if len(fresh.Generations) != len(lookup.MissingPrompts) {
			return nil, fmt.Errorf("%w: %s returned %d results for %d prompts",
				ErrNoGenerations, m.Kind(), len(fresh.Generations), len(lookup.MissingPrompts))
		}
		output, err = m.cache.UpdateCache(ctx, generations, lookup.Fingerprint, lookup.MissingIdx, fresh, prompts)
		if err != nil {
			return nil, err
		}
		if output == nil {
			output = map[string]interface{}{}
		}
	} else {
		config.DebugLog("[Model] %s cache: all %d prompts served from cache", m.Kind(), len(prompts))
	}

	return &Result{Generations: generations, Output: output}, nil
}

// fingerprint identifies the provider parameters plus the stop sequences in effect,
// since both change what the model returns
func (m *Model) fingerprint(stop []string) (string, error) {
	fingerprint, err := m.generator.Fingerprint()
	if err != nil || len(stop) == 0 {
		return fingerprint, err
	}
	data, err := json.Marshal(stop)
	if err != nil {
		return "", err
	}
	return fingerprint + "|stop=" + string(data), nil
}

func (m *Model) generateRaw(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	res, err := m.generator.Generate(ctx, prompts, stop)
	if err != nil {
		log.Printf("[ERROR] LLM error '%v' in %s\n", err, m.Kind())
		return nil, err
	}
	return res, nil
}

// Prompt sends a single prompt and returns the first candidate, trimmed
func Prompt(ctx context.Context, llm LLM, prompt string, stop []string) (string, error) {
	res, err := llm.Generate(ctx, []string{prompt}, stop)
	if err != nil {
		return "", err
	}
	return FirstText(res)
}

// FirstText returns the trimmed text of the first candidate of the first prompt
func FirstText(res *Result) (string, error) {
	if res == nil || len(res.Generations) == 0 || len(res.Generations[0]) == 0 {
		return "", ErrNoGenerations
	}
	return strings.TrimSpace(res.Generations[0][0].Text), nil
}
