package models

// Generation is one candidate completion for a prompt
type Generation struct {
	Text string                 `json:"text"`
	Info map[string]interface{} `json:"info,omitempty"`
}

// Result holds the candidates for each prompt of a batch, in prompt order,
// plus provider level output such as token usage.
type Result struct {
	Generations [][]Generation         `json:"generations"`
	Output      map[string]interface{} `json:"output,omitempty"`
}

// TokenUsage is the usage block providers report under Output["token_usage"]
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage report
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// usageOutput wraps usage in the provider output map
func usageOutput(u TokenUsage) map[string]interface{} {
	return map[string]interface{}{"token_usage": u}
}
