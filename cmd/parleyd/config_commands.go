package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"parley/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage parley configuration",
	}

	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.cfgPath != "" {
				fmt.Fprintf(out, "# %s\n", ctx.cfgPath)
			}
			fmt.Fprintf(out, "data_dir   = %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "media_dir  = %s\n", cfg.Paths.MediaDir)
			fmt.Fprintf(out, "log_dir    = %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "api_bind   = %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "transcriber = %s (model %s)\n", cfg.Transcriber.BaseURL, cfg.Transcriber.Model)
			fmt.Fprintf(out, "analyzer    = %s (model %s)\n", cfg.Analyzer.BaseURL, cfg.Analyzer.Model)
			fmt.Fprintf(out, "retention   = enabled=%t sweep=%ds min_age=%ds\n",
				cfg.Retention.Enabled, cfg.Retention.SweepInterval, cfg.Retention.MinAgeSeconds)
			return nil
		},
	}
}
