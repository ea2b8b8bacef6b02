package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kris-hansen/promptchain/utils/models"
)

// generateCompletionID generates a unique completion ID
func generateCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

// extractInputFromMessages returns the last user message and its position
func extractInputFromMessages(messages []ChatMessage) (string, int) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, i
		}
	}
	return "", -1
}

// buildHistory renders the messages before the current input as a transcript
func buildHistory(messages []ChatMessage) string {
	var parts []string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			parts = append(parts, "System: "+msg.Content)
		case "user":
			parts = append(parts, "Human: "+msg.Content)
		case "assistant":
			parts = append(parts, "AI: "+msg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// chatInputs maps a conversation onto the chain's input variables. Chains with a
// single input get the last user message; conversation chains also get the history.
func chatInputs(vars []string, messages []ChatMessage) (map[string]string, error) {
	input, idx := extractInputFromMessages(messages)
	if idx < 0 {
		return nil, fmt.Errorf("messages has no user message")
	}

	switch {
	case len(vars) == 1:
		return map[string]string{vars[0]: input}, nil
	case len(vars) == 2 && slices.Contains(vars, "history") && slices.Contains(vars, "input"):
		return map[string]string{"history": buildHistory(messages[:idx]), "input": input}, nil
	default:
		return nil, fmt.Errorf("chain inputs %v cannot be filled from chat messages", vars)
	}
}

// handleListModels handles GET /v1/models, listing chains as models
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "invalid_request_error", "Method not allowed")
		return
	}

	data := make([]ModelInfo, 0, len(s.names))
	for _, name := range s.names {
		data = append(data, ModelInfo{
			ID:      name,
			Object:  "model",
			Created: s.started.Unix(),
			OwnedBy: "promptchain",
		})
	}
	sendJSON(w, ModelListResponse{Object: "list", Data: data})
}

// handleChatCompletions handles POST /v1/chat/completions
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "invalid_request_error", "Method not allowed")
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON: "+err.Error())
		return
	}
	if req.Model == "" {
		sendError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	if len(req.Messages) == 0 {
		sendError(w, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}

	sc, ok := s.chains[req.Model]
	if !ok {
		sendError(w, http.StatusNotFound, "model_not_found", fmt.Sprintf("chain %q not found", req.Model))
		return
	}
	inputs, err := chatInputs(sc.chain.InputVariables(), req.Messages)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Stream {
		s.handleStreamingChatCompletion(w, r, req, sc, inputs)
		return
	}

	values, err := sc.exec.Run(r.Context(), inputs, req.Stop)
	if err != nil {
		status, errType := errorStatus(err)
		sendError(w, status, errType, "Chain execution failed: "+err.Error())
		return
	}

	output := values[sc.chain.DefaultOutputKey()]
	finishReason := "stop"
	sendJSON(w, ChatCompletionResponse{
		ID:      generateCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatCompletionChoice{
			{
				Index:        0,
				Message:      &ChatMessage{Role: "assistant", Content: output},
				FinishReason: &finishReason,
			},
		},
		Usage: usage(inputs, output),
	})
}

// handleStreamingChatCompletion sends the chain result as server-sent events
func (s *Server) handleStreamingChatCompletion(w http.ResponseWriter, r *http.Request, req ChatCompletionRequest, sc *served, inputs map[string]string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "server_error", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	completionID := generateCompletionID()
	created := time.Now().Unix()
	sendStreamChunk(w, flusher, completionID, created, req.Model, &ChatDelta{Role: "assistant"}, nil)

	values, err := sc.exec.Run(r.Context(), inputs, req.Stop)
	if err != nil {
		sendStreamError(w, flusher, err.Error())
		return
	}

	if output := values[sc.chain.DefaultOutputKey()]; output != "" {
		sendStreamChunk(w, flusher, completionID, created, req.Model, &ChatDelta{Content: output}, nil)
	}
	finishReason := "stop"
	sendStreamChunk(w, flusher, completionID, created, req.Model, &ChatDelta{}, &finishReason)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func usage(inputs map[string]string, output string) UsageInfo {
	var prompt int
	for _, v := range inputs {
		prompt += models.DefaultNumTokens(v)
	}
	completion := models.DefaultNumTokens(output)
	return UsageInfo{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// sendStreamChunk sends a single SSE chunk in OpenAI format
func sendStreamChunk(w http.ResponseWriter, flusher http.Flusher, id string, created int64, model string, delta *ChatDelta, finishReason *string) {
	chunk := ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// sendStreamError sends an error in streaming format
func sendStreamError(w http.ResponseWriter, flusher http.Flusher, message string) {
	data, _ := json.Marshal(OpenAIError{
		Error: OpenAIErrorDetail{
			Message: message,
			Type:    "server_error",
		},
	})
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
