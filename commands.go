package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/deemkeen/fedcore/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newTokensCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage shared-item federation tokens",
	}
	cmd.AddCommand(newTokensEnsureCmd(a), newTokensRotateCmd(a))
	return cmd
}

func newTokensEnsureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create the token document for the configured domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fed, database, err := a.open(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer database.Close()

			tokens, err := fed.Tokens.EnsureTokens(a.conf.Conf.SharedItemsDomains)
			if err != nil {
				return err
			}

			domains := make([]string, 0, len(tokens))
			for d := range tokens {
				domains = append(domains, d)
			}
			sort.Strings(domains)
			for _, d := range domains {
				state := "pending"
				if tokens[d] != "" {
					state = "set"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d, state)
			}
			return nil
		},
	}
}

func newTokensRotateCmd(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Replace the token of a domain and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fed, database, err := a.open(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer database.Close()

			if target == "" {
				target = a.conf.Conf.SslDomain
			}
			token, err := fed.Tokens.CreateOrRotate(target, true)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "domain", "", "domain to rotate (defaults to the local domain)")
	return cmd
}

func newOutboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox <nickname> <activity.json|->",
		Short: "Submit an activity on behalf of a local user",
		Long:  "Submit reads an activity document and processes it as if the user had posted it to their outbox. Deliveries are queued for the serve process.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if args[1] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("read activity: %w", err)
			}

			activity, err := domain.ParseActivity(body)
			if err != nil {
				return err
			}

			fed, database, err := a.open(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer database.Close()

			if err := fed.Outbox.Submit(args[0], activity); err != nil {
				return fmt.Errorf("%s: %w", domain.KindOf(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s submitted\n", activity.Type)
			return nil
		},
	}
}
