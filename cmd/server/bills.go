package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/garyjia/receivables-portal/internal/application/service"
	"github.com/garyjia/receivables-portal/internal/container"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

const dateLayout = "2006-01-02"

// actorFlags binds the identity a read-only command runs as
type actorFlags struct {
	user  string
	role  string
	scope string
}

func (f *actorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "admin", "user id to act as")
	cmd.Flags().StringVar(&f.role, "role", string(workflow.RoleAdmin), "role to act as")
	cmd.Flags().StringVar(&f.scope, "scope", "", "role scope, e.g. the MDA id of an MDA officer")
}

func (f *actorFlags) actor() (entity.Actor, error) {
	role := workflow.Role(strings.ToLower(f.role))
	if !role.IsValid() {
		return entity.Actor{}, fmt.Errorf("unknown role %q", f.role)
	}
	return entity.Actor{UserID: f.user, Role: role, RoleScopeID: f.scope}, nil
}

func newBillsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bills",
		Short: "Inspect bills from the command line",
	}
	cmd.AddCommand(newBillsListCmd(a), newBillsShowCmd(a))
	return cmd
}

func newBillsListCmd(a *app) *cobra.Command {
	var (
		who    actorFlags
		view   string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the bills of a role view",
		Long:  "List the bills of a role view. Views: " + strings.Join(service.Views, ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			return a.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				bills, err := c.Services().Query.View(ctx, view, actor, service.Page{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Invoice", "Supplier", "MDA", "Amount", "Status", "Updated"})
				for _, b := range bills {
					tw.AppendRow(table.Row{
						b.ID,
						b.InvoiceNumber,
						b.SupplierID,
						b.MDAID,
						b.Currency + " " + b.Amount.StringFixed(2),
						b.Status,
						b.UpdatedAt.Format(dateLayout),
					})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "Bills", len(bills)})
				tw.Render()
				return nil
			})
		},
	}

	who.register(cmd)
	cmd.Flags().StringVar(&view, "view", "inbox", "view name")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newBillsShowCmd(a *app) *cobra.Command {
	var who actorFlags

	cmd := &cobra.Command{
		Use:   "show <bill-id>",
		Short: "Show a bill with its status history and permitted triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			return a.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				bill, err := c.Engine().GetBill(ctx, args[0])
				if err != nil {
					return err
				}
				triggers, err := c.Engine().PermittedTriggers(ctx, bill.ID, actor)
				if err != nil {
					return err
				}
				renderBill(cmd, bill, triggers)
				return nil
			})
		},
	}

	who.register(cmd)
	return cmd
}

func renderBill(cmd *cobra.Command, bill *entity.Bill, triggers []workflow.Trigger) {
	out := cmd.OutOrStdout()

	summary := table.NewWriter()
	summary.SetOutputMirror(out)
	summary.SetTitle("Bill %s", bill.ID)
	summary.AppendRows([]table.Row{
		{"Invoice", bill.InvoiceNumber},
		{"Supplier", bill.SupplierID},
		{"MDA", bill.MDAID},
		{"SPV", bill.SPV()},
		{"Amount", bill.Currency + " " + bill.Amount.StringFixed(2)},
		{"Status", bill.Status},
		{"Version", bill.Version},
	})
	if bill.OfferAmount != nil {
		summary.AppendRow(table.Row{"Offer", bill.OfferAmount.StringFixed(2)})
	}
	if bill.CertificateNumber != nil {
		summary.AppendRow(table.Row{"Certificate", *bill.CertificateNumber})
	}
	if bill.DeedID != nil {
		summary.AppendRow(table.Row{"Deed", *bill.DeedID})
	}
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	summary.AppendRow(table.Row{"Permitted", strings.Join(names, ", ")})
	summary.Render()

	history := table.NewWriter()
	history.SetOutputMirror(out)
	history.SetTitle("Status history")
	history.AppendHeader(table.Row{"#", "Status", "At", "Note"})
	for i, entry := range bill.StatusHistory {
		history.AppendRow(table.Row{i + 1, entry.Status, entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Note})
	}
	history.Render()
}
