package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "rule-console",
		Short: "Manage form notification rules and watch the delivery queue",
		Long: `rule-console talks to the notification rule service over HTTP or NATS.
It lists, creates, updates and deletes rules, previews a rule against a
sample submission and reports delivery queue statistics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a JSON or YAML config file")
	flags.StringVar(&opts.transport, "transport", "", "rule service transport: http or nats (overrides config)")
	flags.StringVar(&opts.baseURL, "base-url", "", "rule service base URL (overrides config)")
	flags.StringVar(&opts.token, "token", "", "bearer token for the rule service (overrides config)")
	flags.StringVar(&opts.role, "role", "", "role of the current user (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve metrics on this address (enables metrics)")
	flags.DurationVar(&opts.pollInterval, "poll-interval", 0, "queue stats poll interval (overrides config)")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newConsoleCmd(opts),
		newRulesCmd(opts),
		newQueueCmd(opts),
	)
	return root
}

// withApp builds the app for one command run and closes it afterwards
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("invalid output format: %s", opts.output)
	}

	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Debug("running command", "command", cmd.CommandPath())
	return fn(a)
}
