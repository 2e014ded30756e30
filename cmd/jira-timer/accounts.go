package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jira-timer/internal/app"
)

func newAccountCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage Jira accounts",
	}
	cmd.AddCommand(
		newAccountAddCommand(opts),
		newAccountListCommand(opts),
		newAccountSelectCommand(opts),
		newAccountTestCommand(opts),
		newAccountRemoveCommand(opts),
	)
	return cmd
}

func newAccountAddCommand(opts *rootOptions) *cobra.Command {
	var req app.AddAccountRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a Jira Cloud or Data Center account",
		Long: `Add a Jira account. Cloud accounts authenticate with email and API token,
Data Center accounts with a personal access token. Pass --token - to read the
token from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Token == "-" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				req.Token = strings.TrimSpace(line)
			}
			if req.Token == "" {
				return errors.New("--token is required")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			var acc app.AccountView
			if err := c.do(cmd.Context(), http.MethodPost, "/accounts", req, &acc); err != nil {
				return err
			}
			who := ""
			if acc.Username != nil {
				who = " as " + *acc.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)%s\nid: %s\n", acc.Name, acc.Type, who, acc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.BaseURL, "url", "", "Site URL, e.g. https://acme.atlassian.net")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email (Cloud only)")
	cmd.Flags().StringVar(&req.Type, "type", "cloud", "cloud or datacenter")
	cmd.Flags().StringVar(&req.Token, "token", "", "API token or personal access token")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newAccountListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var list []app.AccountView
			if err := c.do(cmd.Context(), http.MethodGet, "/accounts", nil, &list); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tTYPE\tURL")
			for _, a := range list {
				mark := ""
				if a.Selected {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, a.ID, a.Name, a.Type, a.BaseURL)
			}
			return tw.Flush()
		},
	}
}

func newAccountSelectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select ACCOUNT-ID",
		Short: "Make an account active and load its issues",
		Args:  exactArgs(1, "an account id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var resp struct {
				Issues int `json:"issues"`
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/accounts/"+url.PathEscape(args[0])+"/select", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected, %d issues assigned\n", resp.Issues)
			return nil
		},
	}
}

func newAccountTestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test ACCOUNT-ID",
		Short: "Check that the stored token is accepted",
		Args:  exactArgs(1, "an account id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var resp struct {
				Connected bool `json:"connected"`
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/accounts/"+url.PathEscape(args[0])+"/test", nil, &resp); err != nil {
				return err
			}
			if !resp.Connected {
				return errors.New("connection failed, check the url and token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "connection ok")
			return nil
		},
	}
}

func newAccountRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ACCOUNT-ID",
		Aliases: []string{"rm"},
		Short:   "Delete an account, its time entries and its stored token",
		Args:    exactArgs(1, "an account id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodDelete, "/accounts/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
