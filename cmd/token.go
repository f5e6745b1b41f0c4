package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"workshop_booking/api"
	"workshop_booking/pkg/config"
)

// tokenCmd mints bearer tokens for local testing.
func tokenCmd() *cobra.Command {
	var (
		role  string
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a signed access token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			sub := ""
			if len(args) == 1 {
				sub = args[0]
			}
			if sub == "" && role != "platform" {
				return fmt.Errorf("a subject is required for role %s", role)
			}

			tok, err := api.CreateAccessToken([]byte(cfg.JWTSecret), sub, role, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "customer", "customer, workshop or platform")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
