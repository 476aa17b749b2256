package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP host",
	Long: fmt.Sprintf(`Issue a bearer token signed with server.auth_secret.

Clients send it as "Authorization: Bearer <token>". The CLI remote commands
read it from --token or $%sTOKEN.`, appid.EnvPrefix()),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Server.AuthSecret == "" {
			return &configError{err: errors.New("server.auth_secret is not set")}
		}

		ttl := cfg.Server.TokenTTL
		if cmd.Flags().Changed("ttl") {
			ttl, _ = cmd.Flags().GetDuration("ttl")
		}
		subject, _ := cmd.Flags().GetString("subject")
		scope, _ := cmd.Flags().GetString("scope")

		signer, err := auth.NewSigner(cfg.Server.AuthSecret, ttl)
		if err != nil {
			return err
		}
		token, err := signer.Generate(subject, scope)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().String("subject", "cli", "Token subject")
	tokenCmd.Flags().String("scope", "api", "Token scope claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry; default server.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
