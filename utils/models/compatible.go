package models

import (
	"fmt"
	"os"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kris-hansen/promptchain/utils/errkind"
)

// compatibleVendor is a service speaking the OpenAI chat completions protocol
type compatibleVendor struct {
	baseURL string
	// endpointEnv overrides baseURL for self-hosted servers
	endpointEnv string
	// local servers accept any key
	local bool
}

var compatibleVendors = map[string]compatibleVendor{
	"deepseek": {baseURL: "https://api.deepseek.com/v1"},
	"xai":      {baseURL: "https://api.x.ai/v1"},
	"moonshot": {baseURL: "https://api.moonshot.ai/v1"},
	"ollama":   {baseURL: "http://localhost:11434/v1", endpointEnv: "OLLAMA_ENDPOINT", local: true},
	"vllm":     {baseURL: "http://localhost:8000/v1", endpointEnv: "VLLM_ENDPOINT", local: true},
}

// IsCompatibleVendor reports whether kind is served by NewCompatibleProvider
func IsCompatibleVendor(kind string) bool {
	_, ok := compatibleVendors[kind]
	return ok
}

// CompatibleVendors returns the vendor kinds served by NewCompatibleProvider, sorted
func CompatibleVendors() []string {
	kinds := make([]string, 0, len(compatibleVendors))
	for k := range compatibleVendors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewCompatibleProvider creates a chat provider for an OpenAI compatible vendor.
// baseURL overrides the vendor's endpoint when not empty.
func NewCompatibleProvider(kind, apiKey, baseURL string, cfg OpenAIConfig) (*ChatProvider, error) {
	vendor, ok := compatibleVendors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an OpenAI compatible vendor", errkind.InvalidOperation, kind)
	}

	if baseURL == "" && vendor.endpointEnv != "" {
		if endpoint := os.Getenv(vendor.endpointEnv); endpoint != "" {
			baseURL = endpoint + "/v1"
		}
	}
	if baseURL == "" {
		baseURL = vendor.baseURL
	}
	if apiKey == "" {
		if !vendor.local {
			return nil, fmt.Errorf("%w: API key is required for %s provider", errkind.InvalidOperation, kind)
		}
		apiKey = "LOCAL"
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL
	base, err := newOpenAIBase(kind, clientCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatProvider{base}, nil
}

// RequiresAPIKey reports whether a provider kind needs an API key to be configured
func RequiresAPIKey(kind string) bool {
	switch kind {
	case "fake", "bedrock", "auto":
		return false
	}
	if v, ok := compatibleVendors[kind]; ok {
		return !v.local
	}
	return true
}
