package model

import (
	"encoding/base64"
	"fmt"
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// -- Anthropic messages API wire structures --
// Differs from the OpenAI format: x-api-key auth, the system prompt travels
// as a top-level field, and images are inline base64 source blocks.

type anthContent struct {
	Type   string      `json:"type"` // "text" or "image"
	Text   string      `json:"text,omitempty"`
	Source *anthSource `json:"source,omitempty"`
}

type anthSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthMessage struct {
	Role    string        `json:"role"`
	Content []anthContent `json:"content"`
}

type anthRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []anthMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
}

type anthResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const anthropicVersion = "2023-06-01"

type anthropicDialect struct{}

func (anthropicDialect) name() string           { return string(config.ProviderAnthropic) }
func (anthropicDialect) defaultBaseURL() string { return "https://api.anthropic.com" }
func (anthropicDialect) endpointPath() string   { return "/v1/messages" }

func (anthropicDialect) buildPayload(cfg config.ModelConfig, systemPrompt, userPrompt string, shot *schemas.Screenshot) (interface{}, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		// max_tokens is mandatory on this API.
		maxTokens = 2048
	}
	return anthRequest{
		Model:  cfg.Name,
		System: systemPrompt,
		Messages: []anthMessage{{
			Role: "user",
			Content: []anthContent{
				{Type: "image", Source: &anthSource{
					Type:      "base64",
					MediaType: "image/" + string(shot.Format),
					Data:      base64.StdEncoding.EncodeToString(shot.Data),
				}},
				{Type: "text", Text: userPrompt},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
	}, nil
}

func (anthropicDialect) decorate(req *http.Request, cfg config.ModelConfig) {
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (anthropicDialect) extractText(body []byte) (string, error) {
	var resp anthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error in 200 response: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("response contains no text block (stop_reason=%s)", resp.StopReason)
}

func init() {
	Register(config.ProviderAnthropic, func(logger *zap.Logger) Model {
		return newClient(anthropicDialect{}, logger)
	})
}
