package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/undercity-games/presence-server/internal/auth"
	"github.com/undercity-games/presence-server/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		username   string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Long: `Mint a session token signed with the configured secret. The platform
auth service issues tokens in production; this exists for local
clients and smoke tests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, configPath)
			if err != nil {
				return err
			}
			if username == "" {
				username = userID
			}

			tok, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.Auth.Secret),
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
				TTL:      ttl,
			}, userID, username)
			if err != nil {
				return err
			}

			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "player id to mint for")
	cmd.Flags().StringVar(&username, "username", "", "username claim (defaults to the player id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
