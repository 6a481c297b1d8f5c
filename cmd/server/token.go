package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/receivables-portal/internal/container"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	httpapi "github.com/garyjia/receivables-portal/internal/interfaces/http"
)

func newTokenCmd(a *app) *cobra.Command {
	var user, role, scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Long: "Mint an API bearer token. Without --role the user's role and scope\n" +
			"are read from the user directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := entity.Actor{UserID: user, Role: workflow.Role(strings.ToLower(role)), RoleScopeID: scope}
			if role == "" {
				err := a.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
					u, err := c.Repositories().User.GetByID(ctx, user)
					if err != nil {
						return fmt.Errorf("lookup user %s: %w", user, err)
					}
					actor.Role = u.Role
					if actor.RoleScopeID == "" {
						actor.RoleScopeID = u.ScopeID
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			tokens := httpapi.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
			token, err := tokens.Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", "", "role claim")
	cmd.Flags().StringVar(&scope, "scope", "", "role scope claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
