package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
)

// maxBodyBytes bounds request bodies; map-reduce inputs can be whole documents
const maxBodyBytes = 8 << 20

// sendError writes an error body in the OpenAI error shape
func sendError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(OpenAIError{
		Error: OpenAIErrorDetail{
			Message: message,
			Type:    errType,
		},
	})
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] Failed to write response: %v\n", err)
	}
}

// errorStatus maps a chain error to an HTTP status and error type
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, chain.ErrInvalidOperation):
		return http.StatusUnprocessableEntity, "invalid_chain_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	case errors.Is(err, chain.ErrCancelled), errors.Is(err, chain.ErrIdleTimeout),
		errors.Is(err, chain.ErrCompleted), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "unavailable_error"
	default:
		return http.StatusBadGateway, "model_error"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "invalid_request_error", "Method not allowed")
		return
	}
	sendJSON(w, HealthResponse{Status: "ok", Chains: len(s.chains)})
}

// handleListChains handles GET /v1/chains
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "invalid_request_error", "Method not allowed")
		return
	}

	data := make([]ChainInfo, 0, len(s.names))
	for _, name := range s.names {
		sc := s.chains[name]
		data = append(data, ChainInfo{
			Name:           name,
			Description:    sc.def.Description,
			InputVariables: sc.chain.InputVariables(),
			OutputKey:      sc.chain.DefaultOutputKey(),
		})
	}
	sendJSON(w, ChainListResponse{Object: "list", Data: data})
}

// handleRunChain handles POST /v1/chains/{name}
func (s *Server) handleRunChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "invalid_request_error", "Method not allowed")
		return
	}

	name := r.PathValue("name")
	sc, ok := s.chains[name]
	if !ok {
		sendError(w, http.StatusNotFound, "chain_not_found", fmt.Sprintf("chain %q not found", name))
		return
	}

	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Inputs) == 0 {
		sendError(w, http.StatusBadRequest, "invalid_request_error", "inputs is required")
		return
	}

	config.DebugLog("Running chain %s with inputs %v", name, keys(req.Inputs))
	values, err := sc.exec.Run(r.Context(), req.Inputs, req.Stops)
	if err != nil {
		status, errType := errorStatus(err)
		log.Printf("[ERROR] Chain %s failed: %v\n", name, err)
		sendError(w, status, errType, err.Error())
		return
	}

	sendJSON(w, RunResponse{
		Chain:   name,
		Output:  values[sc.chain.DefaultOutputKey()],
		Outputs: values,
	})
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
