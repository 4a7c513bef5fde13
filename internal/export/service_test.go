package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
)

type fakeSource struct {
	recs     []*entity.Transaction
	err      error
	from, to *time.Time
}

func (f *fakeSource) ListByDateRange(_ context.Context, from, to *time.Time, _ constants.TxType) ([]*entity.Transaction, error) {
	f.from, f.to = from, to
	return f.recs, f.err
}

func newTestService(src Source) *Service {
	s := NewService(src, nil)
	s.now = func() time.Time { return time.Date(2025, 10, 31, 18, 45, 0, 0, time.UTC) }
	return s
}

func TestService_Window(t *testing.T) {
	s := newTestService(&fakeSource{})
	from := time.Date(2025, 10, 1, 13, 0, 0, 0, time.UTC)

	f, to := s.window(&from, nil)
	require.NotNil(t, to)
	assert.Equal(t, "2025-10-01T00:00:00Z", f.Format(time.RFC3339))
	assert.Equal(t, "2025-10-31", to.Format(time.DateOnly), "open end is today")

	f, to = s.window(nil, nil)
	assert.Nil(t, f)
	assert.Nil(t, to)

	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	f, to = s.window(nil, &end)
	assert.Nil(t, f)
	assert.Equal(t, end, *to)
}

func TestService_ExportCSV(t *testing.T) {
	rec := tx(1, "2025-10-20", constants.Expense, "Office Supplies", "52.52", "0")
	rec.VendorOrCustomer = "Office Depot"
	rec.Description = "paper, toner"
	s := newTestService(&fakeSource{recs: []*entity.Transaction{rec}})

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(context.Background(), &buf, nil, nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Date,Type,Category,VendorOrCustomer,Description,Amount,TaxAmount,Flags,SourceDocument,Fingerprint", lines[0])
	assert.Equal(t, `1,2025-10-20,expense,Office Supplies,Office Depot,"paper, toner",52.52,0.00,,/archive/doc.pdf,fp`, lines[1])
}

func TestWriteCSV_HeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "ID,Date,Type"), buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestService_ExportXLSX(t *testing.T) {
	s := newTestService(&fakeSource{recs: []*entity.Transaction{
		tx(1, "2025-10-01", constants.Income, "Gross receipts or sales", "1000", "80"),
		tx(2, "2025-10-20", constants.Expense, "Office Supplies", "52.52", "0"),
	}})

	data, err := s.ExportXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{"Transactions", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2025-10-20", rows[2][0])
	assert.Equal(t, "Office Supplies", rows[2][2])

	v, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Gross receipts or sales", v)
}

func TestService_SourceError(t *testing.T) {
	s := newTestService(&fakeSource{err: errors.New("disk gone")})
	_, err := s.ExportXLSX(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "disk gone")
	_, err = s.Summary(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestService_Summary(t *testing.T) {
	src := &fakeSource{recs: []*entity.Transaction{tx(1, "2025-10-20", constants.Expense, "Travel", "10", "1")}}
	s := newTestService(src)
	from := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	sum, err := s.Summary(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.00", sum.Expenses.StringFixed(2))
	require.NotNil(t, sum.To)
	assert.Equal(t, "2025-10-31", sum.To.Format(time.DateOnly))
	assert.Equal(t, "2025-10-31", src.to.Format(time.DateOnly))
}
