package helper

import (
	"github.com/sashabaranov/go-openai"
)

// NewOpenAIClient creates a client for the configured OpenAI compatible endpoint.
// Endpoints without authentication get a placeholder key.
func NewOpenAIClient(config *LLMConfiguration) *openai.Client {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return openai.NewClientWithConfig(clientConfig)
}
