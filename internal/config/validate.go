package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if c.Transcriber.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/parley/config.toml"
		}
		return fmt.Errorf("transcriber.base_url is required. Edit %s (create with 'parleyd config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.AuthSecret == "" {
		return errors.New("websocket.auth_secret is required. Set PARLEY_WS_AUTH_SECRET env var or the websocket.auth_secret config key")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.BackoffMaxSeconds < c.Workflow.BackoffBaseSeconds {
		return errors.New("workflow.backoff_max_seconds must be >= workflow.backoff_base_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
