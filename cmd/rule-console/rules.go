package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rule-console/internal/console"
	"rule-console/internal/rule"
	"rule-console/internal/store"
	"rule-console/internal/view"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List, create, update, delete and preview notification rules",
	}
	cmd.AddCommand(
		newRulesListCmd(opts),
		newRulesCreateCmd(opts),
		newRulesUpdateCmd(opts),
		newRulesDeleteCmd(opts),
		newRulesPreviewCmd(opts),
	)
	return cmd
}

func newRulesListCmd(opts *rootOptions) *cobra.Command {
	var (
		query   string
		channel string
		enabled string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.Filter{Query: query, Channel: channel}
			if enabled != "" {
				v, err := strconv.ParseBool(enabled)
				if err != nil {
					return fmt.Errorf("invalid --enabled value %q: %w", enabled, err)
				}
				filter.Enabled = &v
			}

			return withApp(cmd, opts, func(a *app) error {
				if limit > 0 {
					a.cfg.Console.PageSize = limit
				}
				onChange, changes := changeFeed()
				c := a.newConsole(filter, nil, onChange)
				defer c.Close()

				state, err := startConsole(cmd.Context(), c, changes)
				if err != nil {
					return err
				}
				if state.Status() == view.StatusError {
					return fmt.Errorf("failed to list rules: %s", describeError(state.Error))
				}

				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), store.RuleList{Rules: state.Rules, Total: state.Total})
				}
				return printRules(cmd.OutOrStdout(), state.Rules, state.Total)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "match rule names and descriptions")
	flags.StringVar(&channel, "channel", "", "only rules delivering to this channel type")
	flags.StringVar(&enabled, "enabled", "", "only enabled (true) or disabled (false) rules")
	flags.IntVar(&limit, "limit", 0, "maximum number of rules to show (default from config)")
	return cmd
}

func newRulesCreateCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create -f FILE",
		Short: "Create rules from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				drafts, err := rule.NewDraftLoader(a.logger).LoadFile(file)
				if err != nil {
					return err
				}
				if len(drafts) == 0 {
					return fmt.Errorf("no rules in %s", file)
				}

				c, err := mountConsole(cmd.Context(), a, nil)
				if err != nil {
					return err
				}
				defer c.Close()

				for i, draft := range drafts {
					if err := c.Dispatch(cmd.Context(), console.RequestCreate{}); err != nil {
						return fmt.Errorf("cannot create rules: %w", err)
					}
					if err := c.Dispatch(cmd.Context(), console.SubmitForm{Draft: draft}); err != nil {
						return fmt.Errorf("failed to create rule %d (%s): %w", i+1, draft.Name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Created rule %q\n", draft.Name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML file with one rule or a list of rules")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRulesUpdateCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update ID -f FILE",
		Short: "Replace a rule with the contents of a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd, opts, func(a *app) error {
				drafts, err := rule.NewDraftLoader(a.logger).LoadFile(file)
				if err != nil {
					return err
				}
				if len(drafts) != 1 {
					return fmt.Errorf("%s must hold exactly one rule, found %d", file, len(drafts))
				}

				c, err := mountConsole(cmd.Context(), a, nil)
				if err != nil {
					return err
				}
				defer c.Close()

				current, ok := c.State().Rule(id)
				if !ok {
					current = rule.Rule{ID: id}
				}
				if err := c.Dispatch(cmd.Context(), console.RequestEdit{Rule: &current}); err != nil {
					return fmt.Errorf("cannot update rule %s: %w", id, err)
				}
				if err := c.Dispatch(cmd.Context(), console.SubmitForm{Draft: drafts[0]}); err != nil {
					return fmt.Errorf("failed to update rule %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated rule %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML file with the new rule")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRulesDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			confirmer := promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirmer = alwaysConfirm()
			}

			return withApp(cmd, opts, func(a *app) error {
				c, err := mountConsole(cmd.Context(), a, confirmer)
				if err != nil {
					return err
				}
				defer c.Close()

				err = c.Dispatch(cmd.Context(), console.RequestDelete{RuleID: id})
				switch {
				case errors.Is(err, console.ErrNotConfirmed):
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				case err != nil:
					return fmt.Errorf("failed to delete rule %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking for confirmation")
	return cmd
}

func newRulesPreviewCmd(opts *rootOptions) *cobra.Command {
	var eventFile string

	cmd := &cobra.Command{
		Use:   "preview ID --event FILE",
		Short: "Show what a rule would send for a sample form submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd, opts, func(a *app) error {
				values, err := rule.NewDraftLoader(a.logger).LoadValues(eventFile)
				if err != nil {
					return err
				}

				r, err := findRule(cmd.Context(), a, id)
				if err != nil {
					return err
				}

				p, err := rule.PreviewSubmission(r, values)
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), p)
				}
				return printPreview(cmd.OutOrStdout(), *r, p)
			})
		},
	}

	cmd.Flags().StringVar(&eventFile, "event", "", "JSON or YAML file with the sample submission values")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// mountConsole starts a console for a single mutation and waits for the
// rule list. A failed list load does not prevent mutations.
func mountConsole(ctx context.Context, a *app, confirmer console.Confirmer) (*console.Controller, error) {
	onChange, changes := changeFeed()
	c := a.newConsole(store.Filter{}, confirmer, onChange)
	state, err := startConsole(ctx, c, changes)
	if err != nil {
		c.Close()
		return nil, err
	}
	if state.Status() == view.StatusError {
		a.logger.Warn("rule list unavailable", "error", describeError(state.Error))
	}
	return c, nil
}

// findRule pages through the listing until it finds id
func findRule(ctx context.Context, a *app, id string) (*rule.Rule, error) {
	page := store.Page{Limit: a.cfg.Console.PageSize}
	for {
		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Console.Timeout())
		list, err := a.store.ListRules(reqCtx, store.Filter{}, page)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to list rules: %w", err)
		}

		for i := range list.Rules {
			if list.Rules[i].ID == id {
				return &list.Rules[i], nil
			}
		}

		page.Offset += len(list.Rules)
		if len(list.Rules) == 0 || page.Offset >= list.Total {
			return nil, fmt.Errorf("rule %s not found", id)
		}
	}
}
