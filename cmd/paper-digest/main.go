// Package main is the entry point for the paper-digest CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/paper-digest/internal/pipeline"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitEmpty   = 2
)

type options struct {
	configPath string
	envFile    string
	date       string
	logLevel   string
	once       bool

	configChanged bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "paper-digest",
		Short: "Summarize the latest arXiv papers into a markdown newsletter",
		Long: `paper-digest queries arXiv for the newest papers in the configured
categories, asks a language model for a short summary and potential
applications of each, and writes the results as a markdown table.

By default it stays running and builds a digest on the configured cron
schedule. Use --once to build a single digest and exit.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configChanged = cmd.Flags().Changed("config")
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	f.StringVar(&opts.date, "date", "", "digest date as YYYY-MM-DD (default: today)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	f.BoolVar(&opts.once, "once", false, "build one digest and exit")

	return cmd
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrEmptyResult):
		return exitEmpty
	default:
		return exitFailure
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "paper-digest:", err)
	}
	os.Exit(exitCode(err))
}
