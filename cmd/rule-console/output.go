package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"rule-console/internal/console"
	"rule-console/internal/rule"
	"rule-console/internal/stats"
	"rule-console/internal/store"
	"rule-console/internal/view"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRules(w io.Writer, rules []rule.Rule, total int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCHANNEL\tTARGET\tENABLED\tUPDATED")
	for _, r := range rules {
		updated := "-"
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			r.ID, r.Name, r.Channel.Type, r.Channel.Target, r.Enabled, updated)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nShowing %d of %d rules\n", len(rules), total)
	return err
}

func printQueue(w io.Writer, q store.QueueStats, rates stats.Rates, failureRatio float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WAITING\tACTIVE\tCOMPLETED\tFAILED\tFAILURE%\tCOMPLETED/S\tFAILED/S\tCOLLECTED")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.1f\t%.2f\t%.2f\t%s\n",
		q.Waiting, q.Active, q.Completed, q.Failed, failureRatio*100,
		rates.CompletedPerSec, rates.FailedPerSec,
		q.CollectedAt.Local().Format(time.DateTime))
	return tw.Flush()
}

func printPreview(w io.Writer, r rule.Rule, p rule.Preview) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Rule:\t%s (%s)\n", r.Name, r.ID)
	fmt.Fprintf(tw, "Matched:\t%t\n", p.Matched)
	if p.Matched {
		fmt.Fprintf(tw, "Channel:\t%s\n", p.Channel)
		fmt.Fprintf(tw, "Target:\t%s\n", p.Target)
		if p.Subject != "" {
			fmt.Fprintf(tw, "Subject:\t%s\n", p.Subject)
		}
		fmt.Fprintf(tw, "Body:\t%s\n", p.Body)
	}
	return tw.Flush()
}

// describeError renders an error with its field messages, one per line
func describeError(info *view.ErrorInfo) string {
	if info == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", info.Message, info.Kind)
	for _, f := range info.Fields {
		fmt.Fprintf(&b, "\n  %s: %s", f.Field, f.Message)
	}
	if info.Retryable {
		b.WriteString("\n  the request can be retried")
	}
	return b.String()
}

// promptConfirmer asks on the command's terminal. Anything but y or yes
// declines.
func promptConfirmer(in io.Reader, out io.Writer) console.Confirmer {
	reader := bufio.NewReader(in)
	return console.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if _, err := fmt.Fprintf(out, "%s [y/N]: ", prompt); err != nil {
			return false, err
		}

		answers := make(chan string, 1)
		errs := make(chan error, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				errs <- err
				return
			}
			answers <- line
		}()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case err := <-errs:
			if err == io.EOF {
				return false, nil
			}
			return false, err
		case line := <-answers:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			default:
				return false, nil
			}
		}
	})
}

func alwaysConfirm() console.Confirmer {
	return console.ConfirmFunc(func(context.Context, string) (bool, error) {
		return true, nil
	})
}
