// Package llm talks to the OpenAI-compatible chat completion endpoint that
// produces assistant replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"libratrack/pkg/apperr"
	"libratrack/pkg/circuitbreaker"
	"libratrack/pkg/config"
	"libratrack/pkg/prompt"
)

// Completer produces the assistant reply for an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, messages []prompt.Message) (string, error)
}

type Client struct {
	logger  *slog.Logger
	breaker *circuitbreaker.CircuitBreaker

	mu     sync.RWMutex
	cfg    config.ModelConfig
	apiKey string
	client openai.Client
}

// New builds a client from cfg. A nil breaker disables short-circuiting.
func New(cfg config.ModelConfig, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{logger: logger, breaker: breaker}
	c.Reload(cfg)
	return c
}

// Reload swaps in new model settings. In-flight calls finish with the old ones.
func (c *Client) Reload(cfg config.ModelConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiKey := cfg.ResolvedAPIKey()

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Failed turns are surfaced to the user, never retried.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}

	c.mu.Lock()
	c.cfg = cfg
	c.apiKey = apiKey
	c.client = openai.NewClient(opts...)
	c.mu.Unlock()

	c.logger.Info("model client configured", "base_url", cfg.BaseURL, "model", cfg.Model, "api_key_set", apiKey != "")
}

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Model
}

// Complete returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	c.mu.RLock()
	cfg, apiKey, client := c.cfg, c.apiKey, c.client
	c.mu.RUnlock()

	if apiKey == "" {
		return "", fmt.Errorf("%w: model api key is not set", apperr.ErrConfig)
	}

	params, err := buildParams(cfg, messages)
	if err != nil {
		return "", err
	}

	var reply string
	call := func() error {
		start := time.Now()
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up; the host is not to blame.
				return circuitbreaker.Unrecorded(fmt.Errorf("%w: %w", apperr.ErrUpstream, ctx.Err()))
			}
			return mapError(err)
		}
		if len(resp.Choices) == 0 {
			return apperr.Upstream("model returned no choices")
		}
		reply = resp.Choices[0].Message.Content
		c.logger.Debug("model call complete", "model", cfg.Model, "duration", time.Since(start), "total_tokens", resp.Usage.TotalTokens)
		return nil
	}

	if c.breaker == nil {
		err = call()
	} else {
		err = c.breaker.Execute(call, nil)
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", fmt.Errorf("%w: %w", apperr.ErrUpstream, err)
	}
	if err != nil {
		c.logger.Warn("model call failed", "model", cfg.Model, "error", err)
		return "", err
	}
	return reply, nil
}

func buildParams(cfg config.ModelConfig, messages []prompt.Message) (openai.ChatCompletionNewParams, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, m := range messages {
		switch m.Role {
		case prompt.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case prompt.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case prompt.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, apperr.Validation(fmt.Sprintf("messages[%d].role", i), "must be user, assistant or system")
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: out,
	}
	if cfg.Temperature != nil {
		params.Temperature = openai.Float(*cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}
	return params, nil
}

// mapError hides the provider's error body behind ErrUpstream; the status is
// kept for the logs.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apperr.Upstream("model host returned status %d", apiErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperr.ErrUpstream, err)
	}
	return apperr.Upstream("model request failed: %v", err)
}
