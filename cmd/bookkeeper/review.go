package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bookkeeper/internal/ingest"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/normalize"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
	"github.com/joseph-ayodele/bookkeeper/internal/transactions"
)

// fieldFlags lets a reviewer override individual extracted fields.
type fieldFlags struct {
	date, vendor, amount, tax, category, description, txType, notes string
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "vendor or customer")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount (non-negative)")
	cmd.Flags().StringVar(&f.tax, "tax", "", "tax amount")
	cmd.Flags().StringVar(&f.category, "category", "", "category label")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.txType, "type", "", "income or expense")
	cmd.Flags().StringVar(&f.notes, "notes", "", "notes")
}

func (f *fieldFlags) apply(raw llm.RawFields) llm.RawFields {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&raw.Date, f.date)
	set(&raw.Vendor, f.vendor)
	set(&raw.Amount, f.amount)
	set(&raw.TaxAmount, f.tax)
	set(&raw.Category, f.category)
	set(&raw.Description, f.description)
	set(&raw.Type, f.txType)
	set(&raw.Notes, f.notes)
	return raw
}

func newReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve documents in the needs-review archive",
	}
	cmd.AddCommand(newReviewListCmd(a), newReviewAcceptCmd(a), newEditCmd(a))
	return cmd
}

func newReviewListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents waiting for review with the reason they were rejected",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reports, err := filepath.Glob(filepath.Join(a.cfg.Watch.ReviewDir, "*.error.json"))
			if err != nil {
				return err
			}
			sort.Strings(reports)
			out := cmd.OutOrStdout()
			for _, p := range reports {
				r, err := readReport(p)
				if err != nil {
					a.logger.Warn("unreadable error report", "path", p, "error", err)
					continue
				}
				fmt.Fprintf(out, "%s\n  %s: %s\n", strings.TrimSuffix(filepath.Base(p), ".error.json"), r.Kind, r.Message)
				for _, v := range r.Violations {
					fmt.Fprintf(out, "    - %s %s (got %v)\n", v.Field, v.Message, v.Value)
				}
			}
			if len(reports) == 0 {
				fmt.Fprintln(out, "nothing to review")
			}
			return nil
		},
	}
}

func newReviewAcceptCmd(a *app) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "accept <archived-file>",
		Short: "Store a reviewed document using its extracted fields plus any corrections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
				path = filepath.Join(a.cfg.Watch.ReviewDir, path)
			}

			var raw llm.RawFields
			if r, err := readReport(path + ".error.json"); err == nil && r.RawFields != nil {
				raw = *r.RawFields
			}
			raw = fields.apply(raw)

			doc, lerr := llm.LoadDocument(path)
			if lerr != nil {
				return lerr
			}

			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			svc, err := a.transactionsService(db)
			if err != nil {
				return err
			}

			archiver, err := ingest.NewArchiver(a.cfg.Watch.ProcessedDir, a.cfg.Watch.ReviewDir, a.logger)
			if err != nil {
				return err
			}
			rec, err := svc.AcceptFile(ctx, raw, path, doc.Fingerprint(), archiver)
			if err != nil {
				return err
			}
			_ = os.Remove(path + ".error.json")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	fields.register(cmd)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct fields of a stored transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be a number: %w", err)
			}
			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			svc, err := a.transactionsService(db)
			if err != nil {
				return err
			}
			existing, err := svc.Get(ctx, id)
			if err != nil {
				return err
			}
			rec, err := svc.Update(ctx, id, fields.apply(normalize.ToRawFields(existing)))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	fields.register(cmd)
	return cmd
}

func (a *app) transactionsService(db *repository.DB) (*transactions.Service, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	return transactions.NewService(repository.NewTransactionRepository(db, a.logger), cat, a.cfg.Categories.Jurisdiction, a.logger), nil
}

func readReport(path string) (ingest.ErrorReport, error) {
	var r ingest.ErrorReport
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	return r, json.Unmarshal(b, &r)
}
