package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/receivables-portal/internal/container"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	"github.com/garyjia/receivables-portal/pkg/utils"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory that role cohorts resolve against",
	}
	cmd.AddCommand(newUsersAddCmd(a))
	return cmd
}

func newUsersAddCmd(a *app) *cobra.Command {
	user := &entity.User{}
	var role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user.ID = utils.SanitizeString(user.ID)
			user.Name = utils.SanitizeString(user.Name)
			user.Email = strings.TrimSpace(user.Email)
			user.Role = workflow.Role(strings.ToLower(role))

			if user.ID == "" {
				return fmt.Errorf("--id is required")
			}
			if !user.Role.IsValid() || user.Role == workflow.RoleSystem {
				return fmt.Errorf("unknown role %q", role)
			}
			if user.Role == workflow.RoleMDA && user.ScopeID == "" {
				return fmt.Errorf("an MDA officer needs --scope set to the MDA id")
			}
			if user.Email != "" {
				if err := utils.ValidateEmail(user.Email); err != nil {
					return err
				}
			}

			return a.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				if err := c.Repositories().User.Upsert(ctx, user); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", user.ID, user.Role)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&user.ID, "id", "", "user id")
	f.StringVar(&user.Name, "name", "", "display name")
	f.StringVar(&user.Email, "email", "", "email address")
	f.StringVar(&role, "role", "", "supplier, spv, mda, treasury or admin")
	f.StringVar(&user.ScopeID, "scope", "", "role scope, e.g. the MDA id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
