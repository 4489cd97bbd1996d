package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

const dateLayout = "2006-01-02"

func newAgingCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Print the aging report of open bills or sales invoices",
		Long: `Print every approved document with an outstanding amount, classified by
how far past its due date it is on the as-of date.`,
		Example: `  # Payables as of today
  settlectl aging --kind BILL

  # Receivables of one customer at month end, as JSON
  settlectl aging --kind SALES_INVOICE --as-of 2024-03-31 \
    --counterparty 7f1c9a64-2b0e-4d55-9a51-3c2f0b9d8e11 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAging(cmd, app)
		},
	}
	cmd.Flags().String("kind", "", "BILL or SALES_INVOICE (required)")
	cmd.Flags().String("as-of", "", "Report date, YYYY-MM-DD (default: today)")
	cmd.Flags().String("counterparty", "", "Only documents of this counterparty ID")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func runAging(cmd *cobra.Command, app *App) error {
	kind, _ := cmd.Flags().GetString("kind")
	asOfStr, _ := cmd.Flags().GetString("as-of")
	counterparty, _ := cmd.Flags().GetString("counterparty")
	asJSON, _ := cmd.Flags().GetBool("json")

	if kind == "" {
		return fmt.Errorf("%w: --kind", errMissingFlag)
	}
	query := financeapp.AgingQuery{Kind: finance.DocumentKind(strings.ToUpper(kind))}
	if asOfStr != "" {
		asOf, err := time.Parse(dateLayout, asOfStr)
		if err != nil {
			return fmt.Errorf("invalid --as-of, use YYYY-MM-DD: %w", err)
		}
		query.AsOf = asOf
	}
	if counterparty != "" {
		id, err := uuid.Parse(counterparty)
		if err != nil {
			return fmt.Errorf("invalid --counterparty: %w", err)
		}
		query.CounterpartyID = &id
	}

	store, err := app.store()
	if err != nil {
		return err
	}
	report, err := financeapp.NewAgingService(store, app.locale(), financeapp.WithLogger(app.Logger)).
		Report(cmd.Context(), query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Aging of %s as of %s\n\n", report.Kind, report.AsOf.Format(dateLayout))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DOCUMENT\tDUE\tDAYS\tBUCKET\tOUTSTANDING\t")
	for _, row := range report.Rows {
		due := "-"
		if row.DueDate != nil {
			due = row.DueDate.Format(dateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t\n", row.DocumentNumber, due, row.DaysOverdue, row.Bucket, row.Outstanding)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, b := range report.Buckets {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", b.Bucket, b.Count, b.Display)
	}
	fmt.Fprintf(tw, "Total\t%d\t%s\t\n", len(report.Rows), report.TotalDisplay)
	return tw.Flush()
}

func newClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "classify",
		Short:   "Show which aging bucket a due date falls into",
		Example: `  settlectl classify --due 2024-01-15 --as-of 2024-03-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dueStr, _ := cmd.Flags().GetString("due")
			asOfStr, _ := cmd.Flags().GetString("as-of")

			var due *time.Time
			if dueStr != "" {
				d, err := time.Parse(dateLayout, dueStr)
				if err != nil {
					return fmt.Errorf("invalid --due, use YYYY-MM-DD: %w", err)
				}
				due = &d
			}
			asOf := time.Now()
			if asOfStr != "" {
				d, err := time.Parse(dateLayout, asOfStr)
				if err != nil {
					return fmt.Errorf("invalid --as-of, use YYYY-MM-DD: %w", err)
				}
				asOf = d
			}

			result := finance.Classify(due, asOf)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%d days overdue)\n", result.Bucket, result.DaysOverdue)
			return err
		},
	}
	cmd.Flags().String("due", "", "Due date, YYYY-MM-DD (empty: no due date)")
	cmd.Flags().String("as-of", "", "Date to classify against, YYYY-MM-DD (default: now)")
	return cmd
}

// locale parses settlement.locale, falling back to English
func (a *App) locale() language.Tag {
	tag, err := language.Parse(a.Config.Settlement.Locale)
	if err != nil {
		return language.English
	}
	return tag
}
