package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/llmtest"
)

var testCategories = categories.Static{"Office Supplies", "Travel", "Gross receipts or sales"}

type brokenCategories struct{}

func (brokenCategories) Categories(context.Context, string) ([]string, error) {
	return nil, errors.New("catalog offline")
}

func newProcessor(p llm.Provider) *Processor {
	return NewProcessor(nil, p, testCategories, constants.DefaultJurisdiction)
}

func TestProcess_OfficeDepotReceipt(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "office-depot.pdf")
	stub := llmtest.Returning("stub", llmtest.OfficeDepot)

	rec, perr := newProcessor(stub).Process(context.Background(), path)
	require.Nil(t, perr)
	require.NotNil(t, rec)

	assert.Equal(t, time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, "Office Depot", rec.VendorOrCustomer)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("52.52")), rec.Amount.String())
	assert.True(t, rec.TaxAmount.IsZero())
	assert.Equal(t, "Office Supplies", rec.Category)
	assert.Equal(t, constants.Expense, rec.Type)
	assert.Equal(t, path, rec.SourceDocument)
	assert.Equal(t, "stub", rec.Provider)
	assert.Len(t, rec.Fingerprint, 64)
	assert.Zero(t, rec.ID, "processor never persists")
	assert.Equal(t, []string(testCategories), stub.LastCategories(), "category list is passed through in order")
}

func TestProcess_NegativeAmountIsValidation(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "refund.pdf")
	fields := llmtest.OfficeDepot
	fields.Amount = "-52.52"

	rec, perr := newProcessor(llmtest.Returning("stub", fields)).Process(context.Background(), path)
	require.Nil(t, rec)
	require.NotNil(t, perr)
	assert.Equal(t, llm.KindValidation, perr.Kind)
	require.NotNil(t, perr.RawFields)
	assert.Equal(t, "-52.52", perr.RawFields.Amount)
	require.NotEmpty(t, perr.Violations)
	assert.Equal(t, "amount", perr.Violations[0].Field)
	assert.False(t, perr.Retryable())
}

func TestProcess_TimeoutIsNetwork(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "slow.pdf")
	stub := &llmtest.Stub{ProviderName: "slow", Fn: func(ctx context.Context, _ llm.Document, _ []string) llm.Result {
		<-ctx.Done()
		return llm.Failed("slow", llm.ClassifyTransport(ctx.Err()))
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec, perr := newProcessor(stub).Process(ctx, path)
	require.Nil(t, rec)
	require.NotNil(t, perr)
	assert.Equal(t, llm.KindNetwork, perr.Kind)
	assert.True(t, perr.Retryable())
	assert.ErrorIs(t, perr, context.DeadlineExceeded)
}

func TestProcess_UnsupportedFormatNeverCallsProvider(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"docx":             llmtest.WriteFile(t, dir, "letter.docx", []byte("PK\x03\x04 not a receipt")),
		"renamed docx":     llmtest.WriteFile(t, dir, "letter.pdf", []byte("PK\x03\x04 not a receipt")),
		"empty":            llmtest.WriteFile(t, dir, "empty.png", nil),
		"missing":          dir + "/nope.jpg",
		"png named as jpg": llmtest.WritePNG(t, dir, "photo.jpg"),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			stub := llmtest.Returning("stub", llmtest.OfficeDepot)
			rec, perr := newProcessor(stub).Process(context.Background(), path)
			require.Nil(t, rec)
			require.NotNil(t, perr)
			assert.Equal(t, llm.KindUnsupportedFormat, perr.Kind)
			assert.Zero(t, stub.Calls())
		})
	}
}

func TestProcess_EveryFailureCarriesExactlyOneKnownKind(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "r.pdf")

	for _, kind := range llm.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			rec, perr := newProcessor(llmtest.Failing("stub", kind)).Process(context.Background(), path)
			require.Nil(t, rec)
			require.NotNil(t, perr)
			assert.Equal(t, kind, perr.Kind)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		rec, perr := newProcessor(llmtest.Failing("stub", "teapot")).Process(context.Background(), path)
		require.Nil(t, rec)
		require.NotNil(t, perr)
		assert.Equal(t, llm.KindMalformedResponse, perr.Kind)
	})

	t.Run("panic", func(t *testing.T) {
		stub := &llmtest.Stub{ProviderName: "boom", Fn: func(context.Context, llm.Document, []string) llm.Result {
			panic("nil map")
		}}
		rec, perr := newProcessor(stub).Process(context.Background(), path)
		require.Nil(t, rec)
		require.NotNil(t, perr)
		assert.Equal(t, llm.KindMalformedResponse, perr.Kind)
		assert.Equal(t, "boom", perr.Provider)
	})
}

func TestProcess_CategoryListUnavailable(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "r.pdf")
	stub := llmtest.Returning("stub", llmtest.OfficeDepot)
	p := NewProcessor(nil, stub, brokenCategories{}, "nowhere")

	rec, perr := p.Process(context.Background(), path)
	require.Nil(t, rec)
	require.NotNil(t, perr)
	assert.Equal(t, llm.KindValidation, perr.Kind)
	require.Len(t, perr.Violations, 1)
	assert.Equal(t, "category", perr.Violations[0].Field)
	assert.Zero(t, stub.Calls())
}

func TestProcess_UnknownCategoryIsFlaggedNotRejected(t *testing.T) {
	path := llmtest.WritePDF(t, t.TempDir(), "r.pdf")
	fields := llmtest.OfficeDepot
	fields.Category = "Snacks"

	rec, perr := newProcessor(llmtest.Returning("stub", fields)).Process(context.Background(), path)
	require.Nil(t, perr)
	assert.Equal(t, "Snacks", rec.Category)
	assert.True(t, rec.HasFlag(constants.FlagUnknownCategory))
}

func TestProcess_ProvidersAreInterchangeable(t *testing.T) {
	path := llmtest.WritePNG(t, t.TempDir(), "receipt.png")

	var first *Processor
	for i, name := range constants.Providers() {
		p := newProcessor(llmtest.Returning(string(name), llmtest.OfficeDepot))
		if i == 0 {
			first = p
		}
		rec, perr := p.Process(context.Background(), path)
		require.Nil(t, perr, name)

		want, _ := first.Process(context.Background(), path)
		rec.Provider, want.Provider = "", ""
		assert.Equal(t, want, rec, name)
	}
}

func TestProcessingError_Message(t *testing.T) {
	perr := fromExtraction("/in/r.pdf", "openai", llm.Errorf(llm.KindRateLimit, "slow down"))
	assert.Equal(t, "rate_limit: slow down", perr.Error())
	assert.Equal(t, "openai", perr.Provider)

	var ee *llm.ExtractionError
	require.ErrorAs(t, perr, &ee)
	assert.Equal(t, llm.KindRateLimit, ee.Kind)
}
