package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/kris-hansen/promptchain/utils/errkind"
)

// reservedParams are request fields the providers set themselves
var reservedParams = map[string]bool{
	"model":             true,
	"prompt":            true,
	"messages":          true,
	"max_tokens":        true,
	"temperature":       true,
	"top_p":             true,
	"n":                 true,
	"stop":              true,
	"stream":            true,
	"suffix":            true,
	"echo":              true,
	"logprobs":          true,
	"best_of":           true,
	"presence_penalty":  true,
	"frequency_penalty": true,
	"logit_bias":        true,
	"user":              true,
}

// validateExtraArgs rejects extra arguments that collide with explicit parameters
func validateExtraArgs(extra map[string]interface{}) error {
	var clashes []string
	for k := range extra {
		if reservedParams[k] {
			clashes = append(clashes, k)
		}
	}
	if len(clashes) > 0 {
		sort.Strings(clashes)
		return fmt.Errorf("%w: extra_args may not set %s", errkind.InvalidOperation, strings.Join(clashes, ", "))
	}
	return nil
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// extraArgsDoer merges provider specific fields into every JSON request body
type extraArgsDoer struct {
	base  httpDoer
	extra map[string]interface{}
}

func (d *extraArgsDoer) Do(req *http.Request) (*http.Response, error) {
	if req.Body == nil || req.Method != http.MethodPost || !strings.Contains(req.Header.Get("Content-Type"), "json") {
		return d.base.Do(req)
	}

	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	for k, v := range d.extra {
		body[k] = v
	}
	merged, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(merged))
	req.ContentLength = int64(len(merged))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(merged)), nil
	}
	return d.base.Do(req)
}
