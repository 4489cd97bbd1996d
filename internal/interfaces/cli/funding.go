package cli

import (
	"fmt"
	"text/tabwriter"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/spf13/cobra"
)

func newFundingCommand(app *App) *cobra.Command {
	fundingCmd := &cobra.Command{
		Use:   "funding",
		Short: "Inspect funding sources",
	}
	fundingCmd.AddCommand(newFundingListCommand(app, "list"))
	return fundingCmd
}

// newFundingListCommand is shared by "funding list" and the top-level "balances"
func newFundingListCommand(app *App, use string) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   use,
		Short: "List funding sources with their available balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			if page <= 0 || pageSize <= 0 || pageSize > shared.MaxPageSize {
				return fmt.Errorf("page must be positive and page-size between 1 and %d", shared.MaxPageSize)
			}

			store, err := app.store()
			if err != nil {
				return err
			}
			// Listing takes no locks
			funding := financeapp.NewFundingService(store, nil, financeapp.WithLogger(app.Logger))
			filter := shared.DefaultFilter()
			filter.Page, filter.PageSize = page, pageSize
			result, err := funding.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tAVAILABLE")
			for _, src := range result.Items {
				available := src.AvailableBalance
				if !src.Tracked {
					available = "untracked"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", src.ID, src.Name, src.Kind, available)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "\npage %d of %d, %d sources\n", result.Page, result.TotalPages, result.Total)
			return err
		},
	}
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("page-size", 20, "Sources per page")
	return listCmd
}
