package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jira-timer/internal/config"
)

type rootOptions struct {
	verbose bool
	addr    string
}

func newRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "jira-timer",
		Short: "Track time against Jira issues and log it as worklogs",
		Long: `jira-timer runs timers for Jira issues and submits the tracked time as
worklogs when a timer stops. "serve" owns the timers and exposes a local
control API; the other commands talk to it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "Control API address (default HTTP_ADDR)")

	root.AddCommand(
		newServeCommand(opts),
		newStartCommand(opts),
		newStopCommand(opts),
		newCancelCommand(opts),
		newStatusCommand(opts),
		newIssuesCommand(opts),
		newUnsyncedCommand(opts),
		newResubmitCommand(opts),
		newAccountCommand(opts),
	)

	return root
}

// loadConfig reads configuration and builds the process logger from it.
func (o *rootOptions) loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	log, err := newLogger(cfg, o.verbose)
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(log)
	if o.addr != "" {
		cfg.HTTPAddr = o.addr
	}
	return cfg, log, nil
}

func newLogger(cfg config.Config, verbose bool) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, ho)
	} else {
		handler = slog.NewTextHandler(os.Stderr, ho)
	}
	return slog.New(handler), nil
}

func (o *rootOptions) client() (*apiClient, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg.HTTPAddr), nil
}

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%s requires %s", cmd.CommandPath(), what)
		}
		return nil
	}
}
