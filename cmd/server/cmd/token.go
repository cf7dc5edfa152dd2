package cmd

import (
	"fmt"

	"github.com/Wideyedwonderer/buscuit-maker/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenRole    string

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for the REST and websocket API.",
		Long: `Issues an HS256 token signed with the secret named by auth.jwt_secret_env.
Viewers may watch the machine, operators may also command it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			role, err := auth.ParseRole(tokenRole)
			if err != nil {
				return err
			}

			secret, err := cfg.Auth.GetJWTSecret()
			if err != nil {
				return err
			}

			token, err := auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer).Generate(tokenSubject, role)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
)

//nolint:gochecknoinits // cobra wiring
func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject (who is calling)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleOperator), "viewer or operator")
}
