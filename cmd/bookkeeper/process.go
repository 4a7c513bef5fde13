package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/ingest"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
)

func newProcessCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Extract one document and print the record (dry run unless --save)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			if !constants.IsSupportedPath(path) {
				return fmt.Errorf("%s: only %s files are supported", filepath.Base(path), ".pdf, .jpg, .jpeg, .png")
			}

			proc, err := a.processor(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if !save {
				rec, perr := proc.Process(ctx, path)
				if perr != nil {
					_ = enc.Encode(ingest.ReportFromFailure(perr))
					return perr
				}
				return enc.Encode(rec)
			}

			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			w := a.cfg.Watch
			mon, err := ingest.NewMonitor(ingest.MonitorConfig{
				InboxDir:     filepath.Dir(path),
				ProcessedDir: w.ProcessedDir,
				ReviewDir:    w.ReviewDir,
				QueueSize:    1,
			}, proc, repository.NewTransactionRepository(db, a.logger), a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = mon.Stop(ctx) }()

			out, ok := mon.ProcessNow(ctx, path)
			if !ok {
				if out.Err != nil {
					return out.Err
				}
				return fmt.Errorf("%s: %w", path, os.ErrNotExist)
			}
			switch {
			case out.Failure != nil:
				_ = enc.Encode(ingest.ReportFromFailure(out.Failure))
				return out.Failure
			case out.Err != nil:
				return out.Err
			}
			a.logger.Info("document recorded", "id", out.Record.ID, "duplicate", out.Duplicate, "archived_to", out.ArchivedTo)
			return enc.Encode(out.Record)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the record and archive the file")
	return cmd
}
