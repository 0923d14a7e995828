package model

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"context"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

const defaultAPITimeout = 30 * time.Second

// dialect captures what actually differs between provider wire formats.
type dialect interface {
	name() string
	defaultBaseURL() string
	endpointPath() string
	// buildPayload assembles the provider-specific request body for one
	// prompted round trip with the screenshot attached.
	buildPayload(cfg config.ModelConfig, systemPrompt, userPrompt string, shot *schemas.Screenshot) (interface{}, error)
	// decorate sets the provider's auth and protocol headers.
	decorate(req *http.Request, cfg config.ModelConfig)
	// extractText pulls the assistant text out of a 200 response body.
	extractText(body []byte) (string, error)
}

// client implements Model on top of a dialect. One HTTP core, shared
// validation, shared parsing; the dialect only shapes bytes.
type client struct {
	d          dialect
	logger     *zap.Logger
	mu         sync.Mutex
	cfg        config.ModelConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	ready      bool
}

func newClient(d dialect, logger *zap.Logger) *client {
	return &client{
		d:      d,
		logger: logger.Named("model." + d.name()),
	}
}

// Initialize validates the credential and prepares the HTTP client.
func (c *client) Initialize(cfg config.ModelConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return schemas.NewModelError(schemas.ErrCodeAlreadyInitialized, c.d.name(),
			"model already initialized", nil)
	}
	if cfg.APIKey == "" {
		return schemas.NewModelError(schemas.ErrCodeMissingCredential, c.d.name(),
			"API key is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = c.d.defaultBaseURL()
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	c.cfg = cfg
	c.httpClient = &http.Client{Timeout: timeout}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	c.ready = true

	c.logger.Info("Model client initialized",
		zap.String("model", cfg.Name),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", timeout))
	return nil
}

// Analyze performs one prompted round trip to the provider.
func (c *client) Analyze(ctx context.Context, shot *schemas.Screenshot, instruction string, execCtx schemas.ExecutionContext) (*schemas.ModelResponse, error) {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return nil, schemas.NewModelError(schemas.ErrCodeNotInitialized, c.d.name(),
			"model not initialized", nil)
	}
	cfg := c.cfg
	httpClient := c.httpClient
	limiter := c.limiter
	c.mu.Unlock()

	if err := validateAnalyzeInput(c.d.name(), shot, instruction, cfg); err != nil {
		return nil, err
	}

	payload, err := c.d.buildPayload(cfg, systemPrompt(cfg), userPrompt(instruction, execCtx), shot)
	if err != nil {
		return nil, schemas.NewModelError(schemas.ErrCodeInvalidParameters, c.d.name(),
			"failed to build request payload", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, schemas.NewModelError(schemas.ErrCodeInvalidParameters, c.d.name(),
			"failed to marshal request payload", err)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, schemas.NewModelError(schemas.ErrCodeNetwork, c.d.name(),
				"rate limiter wait aborted", err)
		}
	}

	text, err := c.roundTrip(ctx, httpClient, cfg, body)
	if err != nil {
		return nil, err
	}

	resp, err := parsePlan(c.d.name(), text)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Analysis complete",
		zap.Int("actions", len(resp.Actions)),
		zap.Float64("confidence", resp.Confidence))
	return resp, nil
}

// roundTrip posts the payload with retries. Transient failures (network,
// 429, 5xx) back off and retry; everything else is permanent.
func (c *client) roundTrip(ctx context.Context, httpClient *http.Client, cfg config.ModelConfig, body []byte) (string, error) {
	endpoint := cfg.BaseURL + c.d.endpointPath()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var text string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(schemas.NewModelError(schemas.ErrCodeNetwork, c.d.name(),
				"failed to create HTTP request", err))
		}
		req.Header.Set("Content-Type", "application/json")
		c.d.decorate(req, cfg)

		start := time.Now()
		resp, err := httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Network error during model request, retrying", zap.Error(err))
			return schemas.NewModelError(schemas.ErrCodeNetwork, c.d.name(),
				"failed to execute HTTP request", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return schemas.NewModelError(schemas.ErrCodeNetwork, c.d.name(),
				"failed to read response body", err)
		}

		if resp.StatusCode != http.StatusOK {
			httpErr := schemas.NewModelHTTPError(c.d.name(), resp.StatusCode, truncate(string(respBody), 512))
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusInternalServerError,
				http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				c.logger.Warn("Transient provider error, retrying",
					zap.Int("status", resp.StatusCode))
				return httpErr
			default:
				return backoff.Permanent(httpErr)
			}
		}

		extracted, err := c.d.extractText(respBody)
		if err != nil {
			return backoff.Permanent(schemas.NewModelError(schemas.ErrCodeUnparseableResponse, c.d.name(),
				"failed to decode provider response envelope", err))
		}

		c.logger.Info("Model generation complete",
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_bytes", len(respBody)))
		text = extracted
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// GenerateActions is sugar for Analyze using the context's last screenshot.
func (c *client) GenerateActions(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.Action, error) {
	resp, err := c.Analyze(ctx, execCtx.Screenshot, instruction, execCtx)
	if err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// Cleanup clears the credential from memory. The client can be initialized
// again afterwards.
func (c *client) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.APIKey = ""
	c.httpClient = nil
	c.limiter = nil
	c.ready = false
	return nil
}

// validateAnalyzeInput rejects inputs the provider would choke on: a missing
// or non-raster image, an empty or excessively long instruction.
func validateAnalyzeInput(provider string, shot *schemas.Screenshot, instruction string, cfg config.ModelConfig) error {
	if shot == nil || len(shot.Data) == 0 {
		return schemas.NewModelError(schemas.ErrCodeMalformedImage, provider,
			"screenshot is required for analysis", nil)
	}
	if _, ok := schemas.DetectImageFormat(shot.Data); !ok {
		return schemas.NewModelError(schemas.ErrCodeMalformedImage, provider,
			"image is not a supported raster (PNG/JPEG)", nil)
	}
	if instruction == "" {
		return schemas.NewModelError(schemas.ErrCodeInvalidInstruction, provider,
			"instruction must not be empty", nil)
	}
	maxLen := cfg.MaxInstructionLen
	if maxLen <= 0 {
		maxLen = 4000
	}
	if utf8.RuneCountInString(instruction) > maxLen {
		return schemas.NewModelError(schemas.ErrCodeInvalidInstruction, provider,
			fmt.Sprintf("instruction exceeds %d characters", maxLen), nil)
	}
	return nil
}
