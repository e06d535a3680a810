package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rule-console/internal/console"
	"rule-console/internal/store"
	"rule-console/internal/view"
)

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	var statusEvery time.Duration

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the console headless, logging rule and queue status",
		Long: `console mounts the rule console without a UI. It loads the rule list,
polls queue statistics and logs every state change. SIGHUP reloads the
rule list; SIGINT or SIGTERM stops it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runConsole(cmd.Context(), a, statusEvery)
			})
		},
	}
	cmd.Flags().DurationVar(&statusEvery, "status-every", time.Minute, "log a status summary at this interval")
	return cmd
}

func runConsole(ctx context.Context, a *app, statusEvery time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	onChange, changes := changeFeed()
	c := a.newConsole(store.Filter{}, nil, onChange)
	defer c.Close()

	a.serveMetrics(ctx)

	state, err := startConsole(ctx, c, changes)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	logStatus(a, c, state)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	if statusEvery <= 0 {
		statusEvery = time.Minute
	}
	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()

	last := state
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down console")
			return nil
		case <-sigChan:
			a.logger.Info("received SIGHUP, reloading rules")
			if err := c.Dispatch(ctx, console.Refresh{}); err != nil {
				a.logger.Warn("failed to reload rules", "error", err)
			}
		case s := <-changes:
			logChange(a, last, s)
			last = s
		case <-ticker.C:
			logStatus(a, c, c.State())
		}
	}
}

func logStatus(a *app, c *console.Controller, s view.State) {
	fields := []interface{}{
		"status", s.Status(),
		"rules", len(s.Rules),
		"total", s.Total,
	}
	if s.Queue != nil {
		fields = append(fields,
			"waiting", s.Queue.Waiting,
			"active", s.Queue.Active,
			"completed", s.Queue.Completed,
			"failed", s.Queue.Failed,
			"completedPerSec", s.Throughput.CompletedPerSec,
			"failedPerSec", s.Throughput.FailedPerSec,
			"failureRatio", c.Tracker().FailureRatio())
	}
	if a.feed != nil {
		received, rejected := a.feed.Counts()
		fields = append(fields,
			"statsFeedConnected", a.feed.IsConnected(),
			"statsReceived", received,
			"statsRejected", rejected)
	}
	a.logger.Info("console status", fields...)
}

// logChange logs the parts of the view that changed between prev and next
func logChange(a *app, prev, next view.State) {
	if prev.Status() != next.Status() || prev.Total != next.Total {
		switch next.Status() {
		case view.StatusError:
			a.logger.Warn("rule list failed",
				"kind", next.Error.Kind,
				"error", next.Error.Message,
				"retryable", next.Error.Retryable)
		case view.StatusReady:
			a.logger.Info("rule list loaded", "rules", len(next.Rules), "total", next.Total)
		}
	}
	if next.Queue != nil && (prev.Queue == nil || !prev.Queue.CollectedAt.Equal(next.Queue.CollectedAt)) {
		a.logger.Debug("queue stats updated",
			"waiting", next.Queue.Waiting,
			"active", next.Queue.Active,
			"completed", next.Queue.Completed,
			"failed", next.Queue.Failed)
	}
	if next.Notice != nil && (prev.Notice == nil || prev.Notice.Message != next.Notice.Message) {
		a.logger.Warn("console notice", "kind", next.Notice.Kind, "error", next.Notice.Message)
	}
}
