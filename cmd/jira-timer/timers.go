package main

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jira-timer/internal/app"
)

func newStartCommand(opts *rootOptions) *cobra.Command {
	var summary, account string
	cmd := &cobra.Command{
		Use:   "start ISSUE-KEY",
		Short: "Start a timer for an issue",
		Args:  exactArgs(1, "an issue key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var entry app.EntryView
			req := app.StartRequest{IssueKey: args[0], IssueSummary: summary, AccountID: account}
			if err := c.do(cmd.Context(), http.MethodPost, "/timers", req, &entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s %s\n", entry.IssueKey, entry.IssueSummary)
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "Issue summary (default: looked up in the issue list)")
	cmd.Flags().StringVar(&account, "account", "", "Account id (default: selected account)")
	return cmd
}

func newStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ISSUE-KEY",
		Short: "Stop a timer and submit the worklog",
		Args:  exactArgs(1, "an issue key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/timers/"+url.PathEscape(args[0])+"/stop", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s, worklog submitted\n", args[0])
			return nil
		},
	}
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ISSUE-KEY",
		Short: "Discard a running timer without logging work",
		Args:  exactArgs(1, "an issue key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/timers/"+url.PathEscape(args[0])+"/cancel", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var timers []app.TimerView
			if err := c.do(cmd.Context(), http.MethodGet, "/timers", nil, &timers); err != nil {
				return err
			}
			if len(timers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no timers running")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ISSUE\tELAPSED\tSTARTED\tSUMMARY")
			for _, t := range timers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.IssueKey, t.Elapsed, t.StartTime.Local().Format("15:04:05"), t.IssueSummary)
			}
			return tw.Flush()
		},
	}
}

func newIssuesCommand(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List issues assigned to you on the selected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			path := "/issues"
			if refresh {
				path += "?refresh=1"
			}
			var issues []app.IssueView
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &issues); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSTATUS\tLOGGED\tTIMER\tSUMMARY")
			for _, is := range issues {
				timer := ""
				if is.Active {
					timer = is.ElapsedHMS
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", is.Key, is.Status, is.TimeSpent, timer, is.Summary)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch from Jira before listing")
	return cmd
}

func newUnsyncedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsynced",
		Short: "List stopped entries that never reached Jira",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var entries []app.EntryView
			if err := c.do(cmd.Context(), http.MethodGet, "/entries/unsynced", nil, &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "everything is synced")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tISSUE\tDURATION\tSTARTED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.IssueKey, e.Duration, e.StartTime.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newResubmitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit ENTRY-ID",
		Short: "Retry the worklog submission of an unsynced entry",
		Args:  exactArgs(1, "an entry id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/entries/"+url.PathEscape(args[0])+"/resubmit", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entry %s synced\n", args[0])
			return nil
		},
	}
}
