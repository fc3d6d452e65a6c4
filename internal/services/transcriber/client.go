package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"parley/internal/config"
	"parley/internal/services"
)

const (
	defaultHTTPTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	defaultRetryInterval = 500 * time.Millisecond
	defaultRetryMaxWait  = 5 * time.Second
)

// Client wraps a speech-to-text HTTP API that accepts multipart audio uploads
// and returns a transcript.
type Client struct {
	cfg        config.Transcriber
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
// network failures. This retry is a short-range smoothing layer; the durable
// queue owns long-range retries.
func WithRetryPolicy(attempts uint64, interval, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryInterval = interval
		c.retryMaxWait = maxWait
	}
}

// NewClient constructs a transcription client from configuration.
func NewClient(cfg config.Transcriber, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: config.Transcriber{
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

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Transcribe uploads the audio bytes and returns the transcript text. Errors
// carry a classification marker: quota exhaustion, permanent rejection, or
// transient failure.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "base url required", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "api key required", nil)
	}

	// Buffer once so transient retries can replay the body.
	body, err := io.ReadAll(audio)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "read audio", "", err)
	}
	if len(body) == 0 {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "read audio", "empty audio payload", nil)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = c.retryMaxWait
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.retryAttempts), ctx)

	var transcript string
	operation := func() error {
		text, sendErr := c.sendOnce(ctx, body, filename)
		if sendErr != nil {
			if !services.IsTransient(sendErr) || services.IsQuota(sendErr) {
				return backoff.Permanent(sendErr)
			}
			return sendErr
		}
		transcript = text
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return transcript, nil
}

func (c *Client) sendOnce(ctx context.Context, audio []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if c.cfg.Model != "" {
		if err := writer.WriteField("model", c.cfg.Model); err != nil {
			return "", services.Wrap(services.ErrTransient, "transcribe", "encode request", "", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "encode request", "", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "encode request", "", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &buf)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "build request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTransient, "transcribe", "request", "timed out", err)
		}
		return "", services.Wrap(services.ErrTransient, "transcribe", "request", "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "read response", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, payload)
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "decode response", "", err)
	}
	if parsed.Error != nil {
		return "", classifyAPIError(parsed.Error.Code, parsed.Error.Type, parsed.Error.Message)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return "", services.Wrap(services.ErrTransient, "transcribe", "decode response", "empty transcript", nil)
	}
	return parsed.Text, nil
}

func classifyStatus(status int, body []byte) error {
	detail := summarizeBody(body)
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuota, "transcribe", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transcribe", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	default:
		if looksLikeQuota(detail) {
			return services.Wrap(services.ErrQuota, "transcribe", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
		}
		return services.Wrap(services.ErrPermanent, "transcribe", "request", fmt.Sprintf("http %d: %s", status, detail), nil)
	}
}

func classifyAPIError(code, kind, message string) error {
	combined := strings.Join([]string{code, kind, message}, " ")
	if looksLikeQuota(combined) {
		return services.Wrap(services.ErrQuota, "transcribe", "request", strings.TrimSpace(message), nil)
	}
	return services.Wrap(services.ErrPermanent, "transcribe", "request", strings.TrimSpace(message), nil)
}

// looksLikeQuota is a fallback for providers that report quota exhaustion in
// the body of a non-429 response.
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
