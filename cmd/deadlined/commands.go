package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/deadline-tracker/internal/credential"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch recent email once and store the deadlines found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fetcher, err := a.configuredFetcher()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = a.cfg.Email.Days
			}

			res, err := a.syncer.SyncEmails(cmd.Context(), fetcher, days)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "how many days of email to scan (default: email.days)")
	return cmd
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one scheduler scan and fire any immediate notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Scan(cmd.Context()); err != nil {
				return err
			}
			a.engine.FireDue(cmd.Context())
			return printJSON(a.engine.Pending())
		},
	}
}

func newCredsCommand(_ *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage secrets kept in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: fmt.Sprintf("Store a credential (%s or %s)", credential.KeyIMAPPassword, credential.KeyAPIToken),
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := credential.New().Set(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Stored %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Remove a credential",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := credential.ValidateKey(args[0]); err != nil {
					return err
				}
				if err := credential.New().Delete(args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
