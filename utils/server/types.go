package server

// RunRequest is the body of POST /v1/chains/{name}
type RunRequest struct {
	Inputs map[string]string `json:"inputs"`
	Stops  []string          `json:"stops,omitempty"`
}

// RunResponse carries every value of the finished message
type RunResponse struct {
	Chain   string            `json:"chain"`
	Output  string            `json:"output"` // Value under the chain's output key
	Outputs map[string]string `json:"outputs"`
}

// ChainInfo describes a served chain
type ChainInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	InputVariables []string `json:"input_variables"`
	OutputKey      string   `json:"output_key"`
}

// ChainListResponse is the body of GET /v1/chains
type ChainListResponse struct {
	Object string      `json:"object"`
	Data   []ChainInfo `json:"data"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Chains int    `json:"chains"`
}
