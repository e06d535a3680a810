package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rule-console/internal/console"
	"rule-console/internal/stats"
	"rule-console/internal/store"
	"rule-console/internal/view"
)

type queueReport struct {
	Queue           store.QueueStats       `json:"queue"`
	CompletedPerSec float64                `json:"completedPerSec"`
	FailedPerSec    float64                `json:"failedPerSec"`
	Tracker         map[string]interface{} `json:"tracker"`
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show delivery queue statistics",
		Long: `queue prints the delivery queue counters. With --watch it keeps
printing a line per poll until interrupted. Requires a rule manager role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				err := runQueue(cmd.Context(), a, cmd.OutOrStdout(), opts.output == "json", watch)
				if watch && errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing statistics on every poll")
	return cmd
}

func runQueue(ctx context.Context, a *app, out io.Writer, asJSON, watch bool) error {
	onChange, changes := changeFeed()
	c := a.newConsole(store.Filter{}, nil, onChange)
	defer c.Close()

	if _, err := startConsole(ctx, c, changes); err != nil {
		return err
	}
	if err := c.Dispatch(ctx, console.SwitchTab{Tab: view.TabQueue}); err != nil {
		if errors.Is(err, view.ErrForbidden) {
			return fmt.Errorf("queue statistics require a rule manager role: %w", err)
		}
		return err
	}

	// Stats failures leave the view untouched, so a single read gives up
	// after one request timeout.
	wait := ctx
	if !watch {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, a.cfg.Console.Timeout())
		defer cancel()
	}

	var printed *store.QueueStats
	for {
		s := c.State()
		if s.Queue != nil && (printed == nil || !printed.CollectedAt.Equal(s.Queue.CollectedAt)) {
			if err := writeQueue(out, c.Tracker(), *s.Queue, s, asJSON); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			printed = s.Queue
		}

		select {
		case <-wait.Done():
			if ctx.Err() == nil {
				return errors.New("queue statistics unavailable")
			}
			return ctx.Err()
		case <-changes:
		}
	}
}

func writeQueue(out io.Writer, tracker *stats.Tracker, q store.QueueStats, s view.State, asJSON bool) error {
	if asJSON {
		return writeJSON(out, queueReport{
			Queue:           q,
			CompletedPerSec: s.Throughput.CompletedPerSec,
			FailedPerSec:    s.Throughput.FailedPerSec,
			Tracker:         tracker.GetStats(),
		})
	}
	return printQueue(out, q, s.Throughput, tracker.FailureRatio())
}
