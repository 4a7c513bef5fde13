package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bookkeeper/internal/export"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
)

func newExportCmd(a *app) *cobra.Command {
	var format, from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored transactions as XLSX or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fromDate, toDate, err := parseWindow(from, to)
			if err != nil {
				return err
			}
			format = strings.ToLower(format)
			if format != "xlsx" && format != "csv" {
				return fmt.Errorf("--format must be xlsx or csv")
			}
			if format == "xlsx" && out == "" {
				return fmt.Errorf("--out is required for xlsx")
			}

			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			svc := export.NewService(repository.NewTransactionRepository(db, a.logger), a.logger)

			if format == "xlsx" {
				b, err := svc.ExportXLSX(ctx, fromDate, toDate)
				if err != nil {
					return err
				}
				return os.WriteFile(out, b, 0o644)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return svc.ExportCSV(ctx, w, fromDate, toDate)
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or csv")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), inclusive; defaults to today when --from is set")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (csv defaults to stdout)")
	return cmd
}
