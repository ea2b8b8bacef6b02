package models

import (
	"sort"
	"strings"
	"sync"
)

// ModelRegistry maps provider kinds to the models and model families they serve
type ModelRegistry struct {
	// Map of provider name to list of supported models
	models map[string][]string
	// Map of provider name to list of model families (prefixes)
	families map[string][]string
	mu       sync.RWMutex
}

var globalRegistry = NewModelRegistry()

// NewModelRegistry creates a registry holding the default models
func NewModelRegistry() *ModelRegistry {
	registry := &ModelRegistry{
		models:   make(map[string][]string),
		families: make(map[string][]string),
	}
	registry.initializeDefaultModels()
	return registry
}

func (r *ModelRegistry) initializeDefaultModels() {
	// Completion models
	r.RegisterModels("openai", []string{
		"gpt-3.5-turbo-instruct",
		"davinci-002",
		"babbage-002",
	})
	r.RegisterFamilies("openai", []string{
		"text-",
		"davinci",
		"babbage",
		"gpt-3.5-turbo-instruct",
	})

	// Chat models
	r.RegisterModels("openai-chat", []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	})
	r.RegisterFamilies("openai-chat", []string{
		"gpt-4",
		"gpt-3.5-turbo",
		"gpt-5",
		"o1",
		"o3",
		"o4",
	})

	r.RegisterModels("google", []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
	})
	r.RegisterFamilies("google", []string{
		"gemini-",
	})

	r.RegisterModels("bedrock", []string{
		"anthropic.claude-3-5-sonnet-20240620-v1:0",
		"anthropic.claude-3-haiku-20240307-v1:0",
		"amazon.titan-text-express-v1",
		"meta.llama3-70b-instruct-v1:0",
		"mistral.mistral-large-2402-v1:0",
	})
	r.RegisterFamilies("bedrock", []string{
		"anthropic.",
		"amazon.",
		"meta.",
		"mistral.",
		"cohere.",
		"ai21.",
	})

	r.RegisterModels("deepseek", []string{"deepseek-chat", "deepseek-reasoner"})
	r.RegisterFamilies("deepseek", []string{"deepseek-"})

	r.RegisterModels("xai", []string{"grok-3", "grok-3-mini", "grok-4"})
	r.RegisterFamilies("xai", []string{"grok-"})

	r.RegisterModels("moonshot", []string{"moonshot-v1-8k", "moonshot-v1-32k", "kimi-k2-0711-preview"})
	r.RegisterFamilies("moonshot", []string{"moonshot-", "kimi-"})

	// ollama and vllm serve whatever the local server has loaded, so they are
	// never detected from a model name

	r.RegisterModels("fake", []string{"fake"})
	r.RegisterFamilies("fake", []string{"fake"})
}

// RegisterModels adds models to the registry for a specific provider
func (r *ModelRegistry) RegisterModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[provider] = append(r.models[provider], models...)
}

// RegisterFamilies adds model families (prefixes) to the registry for a specific provider
func (r *ModelRegistry) RegisterFamilies(provider string, families []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[provider] = append(r.families[provider], families...)
}

// GetModels returns the list of models for a specific provider
func (r *ModelRegistry) GetModels(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.models[provider]...)
}

// ValidateModel checks if a model is valid for a specific provider
func (r *ModelRegistry) ValidateModel(provider string, modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelName = strings.TrimSpace(strings.ToLower(modelName))
	for _, valid := range r.models[provider] {
		if modelName == valid {
			return true
		}
	}
	for _, family := range r.families[provider] {
		if strings.HasPrefix(modelName, family) {
			return true
		}
	}
	return false
}

// DetectProvider returns the provider serving modelName. Exact matches win over
// families, and longer family prefixes win over shorter ones.
func (r *ModelRegistry) DetectProvider(modelName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelName = strings.TrimSpace(strings.ToLower(modelName))
	for _, provider := range r.providersLocked() {
		for _, valid := range r.models[provider] {
			if modelName == valid {
				return provider, true
			}
		}
	}

	best, bestLen := "", 0
	for _, provider := range r.providersLocked() {
		for _, family := range r.families[provider] {
			if strings.HasPrefix(modelName, family) && len(family) > bestLen {
				best, bestLen = provider, len(family)
			}
		}
	}
	return best, bestLen > 0
}

// Providers returns every provider kind with registered models, sorted
func (r *ModelRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providersLocked()
}

func (r *ModelRegistry) providersLocked() []string {
	providers := make([]string, 0, len(r.models))
	for p := range r.models {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// GetAllModels returns a copy of the models of every provider
func (r *ModelRegistry) GetAllModels() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]string)
	for provider, models := range r.models {
		result[provider] = append([]string{}, models...)
	}
	return result
}

// GetRegistry returns the global model registry instance
func GetRegistry() *ModelRegistry {
	return globalRegistry
}
