package factory

import (
	"fmt"
	"strings"

	"memcontext-be/pkg/llm"
	"memcontext-be/pkg/llm/ollama"
	"memcontext-be/pkg/llm/openai"
)

type ProviderConfig struct {
	Provider string // "openai" (any compatible endpoint) or "ollama"
	APIKey   string
	BaseURL  string
	Model    string
}

func NewLLMProvider(cfg ProviderConfig) (llm.LLMProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
