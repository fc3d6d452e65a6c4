package config

const (
	defaultDataDir              = "~/.local/share/parley/data"
	defaultMediaDir             = "~/.local/share/parley/media"
	defaultLogDir               = "~/.local/share/parley/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultTranscriberTimeout   = 120
	defaultAnalyzerTimeout      = 90
	defaultAnalyzerBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultAnalyzerModel        = "gpt-4o-mini"
	defaultTranscriberModel     = "whisper-1"
	defaultPingIntervalSecs     = 30
	defaultRateLimitPerMinute   = 60
	defaultRateLimitBurst       = 10
	defaultWriteTimeoutSecs     = 10
	defaultTranscribeWorkers    = 4
	defaultAnalyzeWorkers       = 2
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 10
	defaultTranscribeAttempts   = 3
	defaultAnalyzeAttempts      = 3
	defaultBackoffBaseSeconds   = 5
	defaultBackoffMaxSeconds    = 300
	defaultTaskLeaseSeconds     = 300
	defaultLeaseReclaimInterval = 60
	defaultSweepInterval        = 3600
	defaultSweepMinAgeSeconds   = 86400
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			MediaDir: defaultMediaDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Transcriber: Transcriber{
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Analyzer: Analyzer{
			BaseURL:        defaultAnalyzerBaseURL,
			Model:          defaultAnalyzerModel,
			TimeoutSeconds: defaultAnalyzerTimeout,
		},
		WebSocket: WebSocket{
			PingIntervalSecs:   defaultPingIntervalSecs,
			RateLimitPerMinute: defaultRateLimitPerMinute,
			RateLimitBurst:     defaultRateLimitBurst,
			WriteTimeoutSecs:   defaultWriteTimeoutSecs,
		},
		Workflow: Workflow{
			TranscribeWorkers:    defaultTranscribeWorkers,
			AnalyzeWorkers:       defaultAnalyzeWorkers,
			QueuePollInterval:    defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			TranscribeAttempts:   defaultTranscribeAttempts,
			AnalyzeAttempts:      defaultAnalyzeAttempts,
			BackoffBaseSeconds:   defaultBackoffBaseSeconds,
			BackoffMaxSeconds:    defaultBackoffMaxSeconds,
			TaskLeaseSeconds:     defaultTaskLeaseSeconds,
			LeaseReclaimInterval: defaultLeaseReclaimInterval,
		},
		Retention: Retention{
			Enabled:       true,
			SweepInterval: defaultSweepInterval,
			MinAgeSeconds: defaultSweepMinAgeSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
