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

// -- OpenAI chat-completions wire structures --

type oaContentPart struct {
	Type     string      `json:"type"` // "text" or "image_url"
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []oaContentPart
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float32     `json:"temperature,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// openAIDialect speaks the chat/completions wire format. The OpenRouter
// aggregator reuses it with a different base URL and attribution headers.
type openAIDialect struct {
	provider     string
	baseURL      string
	extraHeaders map[string]string
}

func (d *openAIDialect) name() string           { return d.provider }
func (d *openAIDialect) defaultBaseURL() string { return d.baseURL }
func (d *openAIDialect) endpointPath() string   { return "/chat/completions" }

func (d *openAIDialect) buildPayload(cfg config.ModelConfig, systemPrompt, userPrompt string, shot *schemas.Screenshot) (interface{}, error) {
	dataURL := fmt.Sprintf("data:image/%s;base64,%s", shot.Format,
		base64.StdEncoding.EncodeToString(shot.Data))

	return oaRequest{
		Model: cfg.Name,
		Messages: []oaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []oaContentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &oaImageURL{URL: dataURL}},
			}},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, nil
}

func (d *openAIDialect) decorate(req *http.Request, cfg config.ModelConfig) {
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	for k, v := range d.extraHeaders {
		req.Header.Set(k, v)
	}
}

func (d *openAIDialect) extractText(body []byte) (string, error) {
	var resp oaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error in 200 response: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response contains no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func init() {
	Register(config.ProviderOpenAI, func(logger *zap.Logger) Model {
		return newClient(&openAIDialect{
			provider: string(config.ProviderOpenAI),
			baseURL:  "https://api.openai.com/v1",
		}, logger)
	})
}
