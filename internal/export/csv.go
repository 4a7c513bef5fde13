package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/joseph-ayodele/bookkeeper/internal/entity"
)

type csvRow struct {
	ID          int64  `csv:"ID"`
	Date        string `csv:"Date"`
	Type        string `csv:"Type"`
	Category    string `csv:"Category"`
	Vendor      string `csv:"VendorOrCustomer"`
	Description string `csv:"Description"`
	Amount      string `csv:"Amount"`
	TaxAmount   string `csv:"TaxAmount"`
	Flags       string `csv:"Flags"`
	Source      string `csv:"SourceDocument"`
	Fingerprint string `csv:"Fingerprint"`
}

func toCSVRows(recs []*entity.Transaction) []*csvRow {
	rows := make([]*csvRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, &csvRow{
			ID:          r.ID,
			Date:        r.DateString(),
			Type:        string(r.Type),
			Category:    r.Category,
			Vendor:      r.VendorOrCustomer,
			Description: r.Description,
			Amount:      r.Amount.StringFixed(2),
			TaxAmount:   r.TaxAmount.StringFixed(2),
			Flags:       joinFlags(r.Flags),
			Source:      r.SourceDocument,
			Fingerprint: r.Fingerprint,
		})
	}
	return rows
}

// ExportCSV writes the window's records to w, one row per transaction, header first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, from, to *time.Time) error {
	recs, err := s.Records(ctx, from, to)
	if err != nil {
		return err
	}
	if err := WriteCSV(w, recs); err != nil {
		return err
	}
	s.logger.Info("export.csv.ok", "rows", len(recs))
	return nil
}

// WriteCSV renders records as CSV. The header row is written even when recs is empty.
func WriteCSV(w io.Writer, recs []*entity.Transaction) error {
	if err := gocsv.MarshalCSV(toCSVRows(recs), gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}
