package main

import (
	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/package_guard/internal/config"
	"go.uber.org/zap"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string

	// newLogger is swapped in tests.
	newLogger func(level string) *zap.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{newLogger: mustBuildLogger})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package-guard",
		Short: "Gate package installs behind a reputation check",
		Long: `package-guard runs as a PreToolUse hook for coding agents. It inspects shell
commands about to run, and when a command adds an npm package it asks the
Socket CLI for the package's reputation before letting the install through.

Commands:
  hook    Read one hook event on stdin and write the decision on stdout
  check   Evaluate a command string from the terminal
  audit   Inspect recorded security decisions`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default: $"+config.EnvConfigPath+")")

	cmd.AddCommand(
		newHookCmd(opts),
		newCheckCmd(opts),
		newAuditCmd(opts),
	)
	return cmd
}

// load resolves config and a logger. A broken config file degrades to
// defaults with a warning so the hook keeps answering.
func (o *rootOptions) load() (*config.Config, *zap.Logger) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		cfg = config.Default()
		logger := o.newLogger(cfg.LogLevel)
		logger.Warn("config load failed, using defaults", zap.Error(err))
		return cfg, logger
	}
	return cfg, o.newLogger(cfg.LogLevel)
}
