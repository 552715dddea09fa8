package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sme-compliance/internal/infra/api"
)

// tokenCmd mints a session token for local testing against a dev stack.
func tokenCmd(gf *globalFlags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a session token signed with the configured JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if !cfg.Runtime.Dev {
				return fmt.Errorf("token minting requires --dev")
			}
			tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Audience).Mint(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
