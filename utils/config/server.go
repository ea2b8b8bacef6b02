package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Port        int    `yaml:"port"`
	ChainsDir   string `yaml:"chainsDir"` // Directory holding chain definition files served by name
	BearerToken string `yaml:"bearerToken"`
	CORS        CORS   `yaml:"cors"`
	// OpenAICompat also serves chains as models on /v1/models and /v1/chat/completions
	OpenAICompat bool `yaml:"openaiCompat"`
}

// CORS holds Cross-Origin Resource Sharing settings
type CORS struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
	MaxAge         int      `yaml:"maxAge"`
}

// GenerateBearerToken returns a random 32-byte token, hex encoded
func GenerateBearerToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate bearer token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
