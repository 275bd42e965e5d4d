package main

import (
	"fmt"
	"time"

	clientcfg "adichat/backend/client/config"
	"adichat/backend/pkg/jwt"

	"github.com/spf13/cobra"
)

// newTokenCmd mints a session token signed with the server's secret. Meant
// for development setups that share JWT_SECRET with the server.
func newTokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		secret string
		expiry time.Duration
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := jwt.NewService(secret, expiry).GenerateToken(userID, name)
			if err != nil {
				return err
			}
			if save {
				cfg, err := clientcfg.Load(flagConfig)
				if err != nil {
					return err
				}
				cfg.Auth.Token = token
				if err := clientcfg.Save(cfg, flagConfig); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "token saved to %s\n", flagConfig)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to issue the token for")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the config file")
	return cmd
}
