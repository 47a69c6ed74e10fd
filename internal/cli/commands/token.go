package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hierroutes/internal/web/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an admin API token",
		Long: `Issue a signed bearer token for the /_hierarchy admin API.

Roles: admin (view, rebuild, clear cache), editor (view, rebuild),
viewer (view).`,
		Example: `  hierroutes token deploy-bot --role editor
  hierroutes token alice --role admin --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not set")
			}
			for _, r := range roles {
				if auth.RoleByName(r) == nil {
					return fmt.Errorf("unknown role %q", r)
				}
			}

			tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer, ttl)
			token, err := tokens.Issue(args[0], roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&roles, "role", "r", []string{"viewer"}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", DefaultTokenTTL, "token lifetime")
	return cmd
}

// askPassword prompts for a password without echo; tests replace it
var askPassword = func(message string) (string, error) {
	var password string
	if err := survey.AskOne(&survey.Password{Message: message}, &password, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return password, nil
}

// NewHashPasswordCommand creates the hash-password command
func NewHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for auth.users",
		Long: `Prompt for a password and print its bcrypt hash, for use as
auth.users.<name>.password-hash. Users exchange their credentials for a
token with POST /_hierarchy/token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := askPassword("Password:")
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
