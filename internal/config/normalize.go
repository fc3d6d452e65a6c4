package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscriber()
	c.normalizeAnalyzer()
	c.normalizeWebSocket()
	c.normalizeWorkflow()
	c.normalizeRetention()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeTranscriber() {
	if c.Transcriber.APIKey == "" {
		if value, ok := os.LookupEnv("PARLEY_TRANSCRIBER_API_KEY"); ok {
			c.Transcriber.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcriber.BaseURL = strings.TrimSpace(c.Transcriber.BaseURL)
	c.Transcriber.Model = strings.TrimSpace(c.Transcriber.Model)
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = defaultTranscriberModel
	}
	if c.Transcriber.TimeoutSeconds <= 0 {
		c.Transcriber.TimeoutSeconds = defaultTranscriberTimeout
	}
}

func (c *Config) normalizeAnalyzer() {
	if c.Analyzer.APIKey == "" {
		if value, ok := os.LookupEnv("PARLEY_ANALYZER_API_KEY"); ok {
			c.Analyzer.APIKey = strings.TrimSpace(value)
		}
	}
	c.Analyzer.BaseURL = strings.TrimSpace(c.Analyzer.BaseURL)
	if c.Analyzer.BaseURL == "" {
		c.Analyzer.BaseURL = defaultAnalyzerBaseURL
	}
	c.Analyzer.Model = strings.TrimSpace(c.Analyzer.Model)
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = defaultAnalyzerModel
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = defaultAnalyzerTimeout
	}
}

func (c *Config) normalizeWebSocket() {
	if c.WebSocket.AuthSecret == "" {
		if value, ok := os.LookupEnv("PARLEY_WS_AUTH_SECRET"); ok {
			c.WebSocket.AuthSecret = strings.TrimSpace(value)
		}
	}
	if c.WebSocket.PingIntervalSecs <= 0 {
		c.WebSocket.PingIntervalSecs = defaultPingIntervalSecs
	}
	if c.WebSocket.RateLimitPerMinute <= 0 {
		c.WebSocket.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	if c.WebSocket.RateLimitBurst <= 0 {
		c.WebSocket.RateLimitBurst = defaultRateLimitBurst
	}
	if c.WebSocket.WriteTimeoutSecs <= 0 {
		c.WebSocket.WriteTimeoutSecs = defaultWriteTimeoutSecs
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.TranscribeWorkers <= 0 {
		c.Workflow.TranscribeWorkers = defaultTranscribeWorkers
	}
	if c.Workflow.AnalyzeWorkers <= 0 {
		c.Workflow.AnalyzeWorkers = defaultAnalyzeWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.TranscribeAttempts <= 0 {
		c.Workflow.TranscribeAttempts = defaultTranscribeAttempts
	}
	if c.Workflow.AnalyzeAttempts <= 0 {
		c.Workflow.AnalyzeAttempts = defaultAnalyzeAttempts
	}
	if c.Workflow.BackoffBaseSeconds <= 0 {
		c.Workflow.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Workflow.BackoffMaxSeconds <= 0 {
		c.Workflow.BackoffMaxSeconds = defaultBackoffMaxSeconds
	}
	if c.Workflow.TaskLeaseSeconds <= 0 {
		c.Workflow.TaskLeaseSeconds = defaultTaskLeaseSeconds
	}
	if c.Workflow.LeaseReclaimInterval <= 0 {
		c.Workflow.LeaseReclaimInterval = defaultLeaseReclaimInterval
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.SweepInterval <= 0 {
		c.Retention.SweepInterval = defaultSweepInterval
	}
	if c.Retention.MinAgeSeconds <= 0 {
		c.Retention.MinAgeSeconds = defaultSweepMinAgeSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
