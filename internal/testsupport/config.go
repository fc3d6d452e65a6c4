package testsupport

import (
	"path/filepath"
	"testing"

	"parley/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Transcriber.BaseURL = "http://127.0.0.1:0"
	cfgVal.Transcriber.APIKey = "test"
	cfgVal.Analyzer.BaseURL = "http://127.0.0.1:0"
	cfgVal.Analyzer.APIKey = "test"
	cfgVal.WebSocket.AuthSecret = "test-secret"
	cfgVal.Workflow.QueuePollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTranscriberURL points the transcriber client at the given endpoint.
func WithTranscriberURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcriber.BaseURL = url
	}
}

// WithAnalyzerURL points the analyzer client at the given endpoint.
func WithAnalyzerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analyzer.BaseURL = url
	}
}

// WithWebSocketSecret overrides the token signing secret on the test config.
func WithWebSocketSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.WebSocket.AuthSecret = secret
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
