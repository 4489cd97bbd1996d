package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCreditCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit <counterparty-id>",
		Short: "Show a counterparty's available credit and its latest movements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counterparty, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid counterparty ID: %w", err)
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 || limit > shared.MaxPageSize {
				return fmt.Errorf("limit must be between 1 and %d", shared.MaxPageSize)
			}

			store, err := app.store()
			if err != nil {
				return err
			}
			credits := financeapp.NewCreditService(store, nil, financeapp.WithLogger(app.Logger))
			balance, err := credits.Balance(cmd.Context(), counterparty)
			if err != nil {
				return err
			}
			filter := shared.DefaultFilter()
			filter.PageSize = limit
			history, err := credits.Transactions(cmd.Context(), counterparty, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Available credit: %s\n", balance.AvailableCredit)
			if len(history.Items) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tSOURCE\tAMOUNT\tBALANCE")
			for _, tx := range history.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					tx.CreatedAt.Format(time.DateTime), tx.Type, tx.SourceType, tx.Amount, tx.BalanceAfter)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Number of movements to show")
	return cmd
}
