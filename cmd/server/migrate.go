package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receivables-portal/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMigrator(func(m *database.Migrator) error {
				applied, err := m.RunMigrations(sqlite.Migrations, sqlite.MigrationsDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", applied, a.cfg.Database.Path)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMigrator(func(m *database.Migrator) error {
				statuses, err := m.Status(sqlite.Migrations, sqlite.MigrationsDir)
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Version", "Name", "Applied", "Applied At"})
				for _, s := range statuses {
					appliedAt := ""
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					tw.AppendRow(table.Row{s.Version, s.Name, s.Applied, appliedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func (a *app) withMigrator(fn func(m *database.Migrator) error) error {
	conn, err := database.New(database.Config{
		Path:            a.cfg.Database.Path,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}()
	return fn(database.NewMigrator(conn, a.logger))
}
