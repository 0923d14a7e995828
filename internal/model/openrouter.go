package model

import (
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// OpenRouter aggregates many upstream models behind an OpenAI-compatible
// endpoint, so the dialect is reused wholesale; only the base URL and the
// attribution headers the aggregator asks for differ.
func init() {
	Register(config.ProviderOpenRouter, func(logger *zap.Logger) Model {
		return newClient(&openAIDialect{
			provider: string(config.ProviderOpenRouter),
			baseURL:  "https://openrouter.ai/api/v1",
			extraHeaders: map[string]string{
				"HTTP-Referer": "https://github.com/goelayush89/robin-ai-sub000",
				"X-Title":      "robin",
			},
		}, logger)
	})
}
