package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
	"github.com/garyjia/receivables-portal/internal/infrastructure/export"
)

type termsOptions struct {
	principal string
	quarters  int
	start     string
	rate      string
	overrides []string
	currency  string
	xlsx      string
}

func newTermsCmd(a *app) *cobra.Command {
	opts := &termsOptions{}

	cmd := &cobra.Command{
		Use:   "terms",
		Short: "Preview a quarterly payment schedule",
		Example: "  portal terms --principal 1000000 --quarters 4 --start 2026-Q1 --rate 12\n" +
			"  portal terms --principal 500000 --quarters 6 --start 2026-Q3 --override 0=0 --xlsx schedule.xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.previewTerms(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.principal, "principal", "", "principal amount")
	f.IntVar(&opts.quarters, "quarters", 4, "number of quarterly installments")
	f.StringVar(&opts.start, "start", "", "first payment quarter, e.g. 2026-Q1")
	f.StringVar(&opts.rate, "rate", "0", "annual interest rate in percent")
	f.StringArrayVar(&opts.overrides, "override", nil, "per-quarter rate as index=rate, repeatable")
	f.StringVar(&opts.currency, "currency", "", "currency label for the workbook (defaults to lifecycle.default_currency)")
	f.StringVar(&opts.xlsx, "xlsx", "", "also write the schedule workbook to this path")
	_ = cmd.MarkFlagRequired("principal")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func (a *app) previewTerms(cmd *cobra.Command, opts *termsOptions) error {
	principal, err := decimal.NewFromString(opts.principal)
	if err != nil {
		return fmt.Errorf("invalid principal %q: %w", opts.principal, err)
	}
	rate, err := decimal.NewFromString(opts.rate)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", opts.rate, err)
	}
	overrides, err := parseOverrides(opts.overrides)
	if err != nil {
		return err
	}

	schedule, err := terms.Calculate(terms.Input{
		Principal:     principal,
		Quarters:      opts.quarters,
		StartQuarter:  opts.start,
		AnnualRate:    rate,
		RateOverrides: overrides,
	})
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"#", "Quarter", "Principal", "Interest", "Due Date"})
	for i, term := range schedule {
		tw.AppendRow(table.Row{i + 1, term.QuarterLabel, term.Amount.StringFixed(2), term.Interest.StringFixed(2), term.DueDate.Format("2006-01-02")})
	}
	tw.AppendFooter(table.Row{"", "Total", terms.Total(schedule).StringFixed(2), terms.TotalInterest(schedule).StringFixed(2), ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	tw.Render()

	if opts.xlsx == "" {
		return nil
	}

	currency := opts.currency
	if currency == "" {
		currency = a.cfg.Lifecycle.DefaultCurrency
	}
	content, err := export.NewWorkbookExporter(a.logger).PaymentSchedule(&entity.Bill{
		InvoiceNumber:       "PREVIEW",
		Amount:              principal,
		Currency:            currency,
		PaymentQuarters:     opts.quarters,
		PaymentStartQuarter: opts.start,
		PaymentTerms:        schedule,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.xlsx, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.xlsx, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.xlsx)
	return nil
}

// parseOverrides reads index=rate pairs
func parseOverrides(raw []string) (map[int]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	overrides := make(map[int]decimal.Decimal, len(raw))
	for _, pair := range raw {
		idx, rate, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid override %q, want index=rate", pair)
		}
		i, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return nil, fmt.Errorf("invalid override index %q: %w", idx, err)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("invalid override rate %q: %w", rate, err)
		}
		overrides[i] = r
	}
	return overrides, nil
}
