// Package daemonrun assembles the daemon's dependency graph and owns the
// process-level runtime loop: logger construction, pid file, signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"parley/internal/blobstore"
	"parley/internal/config"
	"parley/internal/daemon"
	"parley/internal/logging"
	"parley/internal/pipeline"
	"parley/internal/services/analyzer"
	"parley/internal/services/transcriber"
	"parley/internal/store"
	"parley/internal/taskqueue"
	"parley/internal/ws"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the parley daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "parleyd.log")
	logger, err := logging.New(logging.Options{
		Level:            firstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "parleyd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	blobs, err := blobstore.New(cfg.Paths.MediaDir)
	if err != nil {
		logger.Error("open blob store", logging.Error(err))
		return err
	}

	hub := ws.NewHub(cfg.WebSocket, logger)
	dispatcher := taskqueue.NewDispatcher(cfg, st, logger)
	pipe := pipeline.New(cfg, st, blobs,
		transcriber.NewClient(cfg.Transcriber),
		analyzer.NewClient(cfg.Analyzer),
		hub, logger)
	pipe.Register(dispatcher)

	d, err := daemon.New(cfg, st, logger, dispatcher, hub, pipe)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("parley daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
