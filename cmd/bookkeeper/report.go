package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bookkeeper/internal/export"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
)

func newReportCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a cash-basis income and expense summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fromDate, toDate, err := parseWindow(from, to)
			if err != nil {
				return err
			}
			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			sum, err := export.NewService(repository.NewTransactionRepository(db, a.logger), a.logger).Summary(ctx, fromDate, toDate)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "TYPE\tCATEGORY\tCOUNT\tTOTAL\tTAX\t")
			for _, c := range sum.Categories {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t\n", c.Type, c.Category, c.Count, c.Total.StringFixed(2), c.Tax.StringFixed(2))
			}
			fmt.Fprintln(tw, "\t\t\t\t\t")
			fmt.Fprintf(tw, "\tincome\t\t%s\t%s\t\n", sum.Income.StringFixed(2), sum.TaxCollected.StringFixed(2))
			fmt.Fprintf(tw, "\texpenses\t\t%s\t%s\t\n", sum.Expenses.StringFixed(2), sum.TaxPaid.StringFixed(2))
			fmt.Fprintf(tw, "\tnet\t%d\t%s\t\t\n", sum.Count, sum.Net.StringFixed(2))
			if err := tw.Flush(); err != nil {
				return err
			}
			if sum.Flagged > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d record(s) carry review flags\n", sum.Flagged)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), inclusive")
	return cmd
}
