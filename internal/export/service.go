package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
)

// Source is the read side of the transaction store.
type Source interface {
	ListByDateRange(ctx context.Context, from, to *time.Time, txType constants.TxType) ([]*entity.Transaction, error)
}

// Service produces XLSX and CSV exports plus cash-basis summaries from stored records.
type Service struct {
	src    Source
	now    func() time.Time
	logger *slog.Logger
}

func NewService(src Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{src: src, now: time.Now, logger: logger}
}

// window normalizes a date range to whole UTC days.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func (s *Service) window(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := entity.DateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := entity.DateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := entity.DateOnly(s.now().UTC())
		toDate = &t
	}
	return fromDate, toDate
}

// Records loads the records in the normalized window.
func (s *Service) Records(ctx context.Context, from, to *time.Time) ([]*entity.Transaction, error) {
	fromDate, toDate := s.window(from, to)
	recs, err := s.src.ListByDateRange(ctx, fromDate, toDate, "")
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return recs, nil
}

// Summary computes the cash-basis summary for the window.
func (s *Service) Summary(ctx context.Context, from, to *time.Time) (Summary, error) {
	recs, err := s.Records(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}
	sum := CashBasisSummary(recs)
	sum.From, sum.To = s.window(from, to)
	return sum, nil
}

// ExportXLSX returns a workbook with a Transactions sheet and a Summary sheet.
func (s *Service) ExportXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	recs, err := s.Records(ctx, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Transactions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Date",
		"Type",
		"Category",
		"Vendor/Customer",
		"Description",
		"Amount",
		"Tax",
		"Flags",
		"Source Document",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.DateString())
		write(2, string(r.Type))
		write(3, r.Category)
		write(4, r.VendorOrCustomer)
		write(5, truncate(r.Description, 140))
		// amounts as numbers so the sheet can sum them
		write(6, r.Amount.InexactFloat64())
		write(7, r.TaxAmount.InexactFloat64())
		write(8, joinFlags(r.Flags))
		write(9, r.SourceDocument)
		row++
	}

	if style, err := f.NewStyle(&excelize.Style{NumFmt: 4}); err == nil && row > 2 {
		_ = f.SetCellStyle(sheet, "F2", fmt.Sprintf("G%d", row-1), style)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "B", 9)  // type
	_ = f.SetColWidth(sheet, "C", "C", 28) // category
	_ = f.SetColWidth(sheet, "D", "D", 28) // vendor
	_ = f.SetColWidth(sheet, "E", "E", 48) // description
	_ = f.SetColWidth(sheet, "F", "G", 14) // amounts
	_ = f.SetColWidth(sheet, "H", "H", 20) // flags
	_ = f.SetColWidth(sheet, "I", "I", 60) // path

	if err := writeSummarySheet(f, CashBasisSummary(recs)); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, sum Summary) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	set := func(cell string, v any) { _ = f.SetCellValue(sheet, cell, v) }

	set("A1", "Type")
	set("B1", "Category")
	set("C1", "Count")
	set("D1", "Total")
	set("E1", "Tax")

	row := 2
	for _, c := range sum.Categories {
		set(fmt.Sprintf("A%d", row), string(c.Type))
		set(fmt.Sprintf("B%d", row), c.Category)
		set(fmt.Sprintf("C%d", row), c.Count)
		set(fmt.Sprintf("D%d", row), c.Total.InexactFloat64())
		set(fmt.Sprintf("E%d", row), c.Tax.InexactFloat64())
		row++
	}

	row++
	for _, line := range []struct {
		label string
		value float64
	}{
		{"Total income", sum.Income.InexactFloat64()},
		{"Total expenses", sum.Expenses.InexactFloat64()},
		{"Net", sum.Net.InexactFloat64()},
		{"Tax on income", sum.TaxCollected.InexactFloat64()},
		{"Tax on expenses", sum.TaxPaid.InexactFloat64()},
	} {
		set(fmt.Sprintf("B%d", row), line.label)
		set(fmt.Sprintf("D%d", row), line.value)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 9)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 8)
	_ = f.SetColWidth(sheet, "D", "E", 14)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
