package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/relaygate/internal/auth"
	"github.com/gosuda/relaygate/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		tenant string
		actor  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a tenant actor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("token: --tenant: %w", err)
			}

			tok, err := auth.IssueToken(cfg.JWT.Secret, tenantID, actor, role, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant id (uuid)")
	cmd.Flags().StringVarP(&actor, "actor", "a", "", "actor id")
	cmd.Flags().StringVarP(&role, "role", "r", "member", "role: admin, member or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
