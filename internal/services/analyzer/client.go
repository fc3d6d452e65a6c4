package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"parley/internal/config"
	"parley/internal/services"
)

const (
	defaultHTTPTimeout   = 90 * time.Second
	defaultRetryAttempts = 3
	defaultRetryInterval = time.Second
	defaultRetryMaxWait  = 10 * time.Second
)

// Client wraps a chat-completion API used to analyze conversation transcripts.
type Client struct {
	cfg        config.Analyzer
	httpClient *http.Client

	retryAttempts uint64
	retryInterval time.Duration
	retryMaxWait  time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the in-process retry budget for transient
// network failures.
func WithRetryPolicy(attempts uint64, interval, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryInterval = interval
		c.retryMaxWait = maxWait
	}
}

// NewClient constructs an analysis client from configuration.
func NewClient(cfg config.Analyzer, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: config.Analyzer{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: defaultRetryAttempts,
		retryInterval: defaultRetryInterval,
		retryMaxWait:  defaultRetryMaxWait,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete issues a chat completion with the supplied prompts and returns the
// model's text output. Errors carry a classification marker.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", services.Wrap(services.ErrPermanent, "analyze", "request", "system prompt required", nil)
	}
	if userPrompt == "" {
		return "", services.Wrap(services.ErrPermanent, "analyze", "request", "user prompt required", nil)
	}
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrPermanent, "analyze", "request", "base url required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrPermanent, "analyze", "request", "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = c.retryMaxWait
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.retryAttempts), ctx)

	var content string
	operation := func() error {
		text, sendErr := c.sendOnce(ctx, payload)
		if sendErr != nil {
			if !services.IsTransient(sendErr) || services.IsQuota(sendErr) {
				return backoff.Permanent(sendErr)
			}
			return sendErr
		}
		content = text
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "analyze", "encode request", "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "analyze", "build request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTransient, "analyze", "request", "timed out", err)
		}
		return "", services.Wrap(services.ErrTransient, "analyze", "request", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "analyze", "read response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "analyze", "decode response", "", err)
	}
	if parsed.Error != nil {
		combined := strings.Join([]string{parsed.Error.Code, parsed.Error.Type, parsed.Error.Message}, " ")
		if looksLikeQuota(combined) {
			return "", services.Wrap(services.ErrQuota, "analyze", "request", strings.TrimSpace(parsed.Error.Message), nil)
		}
		return "", services.Wrap(services.ErrPermanent, "analyze", "request", strings.TrimSpace(parsed.Error.Message), nil)
	}

	for _, choice := range parsed.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", services.Wrap(services.ErrPermanent, "analyze", "decode response", "model refusal: "+refusal, nil)
		}
	}
	return "", services.Wrap(services.ErrTransient, "analyze", "decode response", "empty choices", nil)
}

func classifyStatus(status int, body []byte) error {
	detail := summarizeBody(body)
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuota, "analyze", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "analyze", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	default:
		if looksLikeQuota(detail) {
			return services.Wrap(services.ErrQuota, "analyze", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
		}
		return services.Wrap(services.ErrPermanent, "analyze", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	}
}

func looksLikeQuota(detail string) bool {
	lowered := strings.ToLower(detail)
	for _, needle := range []string{"insufficient_quota", "quota", "rate limit", "billing"} {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}

func summarizeBody(body []byte) string {
	const maxLen = 300
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxLen {
		return trimmed[:maxLen] + "..."
	}
	return trimmed
}
