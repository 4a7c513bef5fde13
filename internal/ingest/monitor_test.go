package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/async"
	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/llmtest"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
)

// memoryGateway is an in-memory store keyed by fingerprint.
type memoryGateway struct {
	mu      sync.Mutex
	saved   []*entity.Transaction
	byFP    map[string]int64
	saveErr error
}

func newMemoryGateway() *memoryGateway { return &memoryGateway{byFP: map[string]int64{}} }

func (g *memoryGateway) Save(_ context.Context, t *entity.Transaction) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return 0, g.saveErr
	}
	if _, ok := g.byFP[t.Fingerprint]; ok {
		return 0, common.ErrDuplicate
	}
	id := int64(len(g.saved) + 1)
	cp := *t
	cp.ID = id
	g.saved = append(g.saved, &cp)
	g.byFP[t.Fingerprint] = id
	return id, nil
}

func (g *memoryGateway) Exists(_ context.Context, fp string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byFP[fp]
	return ok, nil
}

func (g *memoryGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saved)
}

// extractorFunc adapts a function to Extractor.
type extractorFunc func(ctx context.Context, path string) (*entity.Transaction, *pipeline.ProcessingError)

func (f extractorFunc) Process(ctx context.Context, path string) (*entity.Transaction, *pipeline.ProcessingError) {
	return f(ctx, path)
}

type fixture struct {
	inbox string
	mon   *Monitor
	gw    *memoryGateway
	stub  *llmtest.Stub
	out   chan Outcome
}

func newFixture(t *testing.T, stub *llmtest.Stub, edit func(*MonitorConfig)) *fixture {
	t.Helper()
	inbox := t.TempDir()
	f := &fixture{inbox: inbox, gw: newMemoryGateway(), stub: stub, out: make(chan Outcome, 16)}
	cfg := MonitorConfig{
		InboxDir:    inbox,
		Debounce:    20 * time.Millisecond,
		InitialScan: true,
		JobTimeout:  5 * time.Second,
		OnOutcome:   func(o Outcome) { f.out <- o },
	}
	if edit != nil {
		edit(&cfg)
	}
	proc := pipeline.NewProcessor(nil, stub, categories.Static{"Office Supplies", "Travel"}, constants.DefaultJurisdiction)
	mon, err := NewMonitor(cfg, proc, f.gw, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mon.Stop(ctx)
	})
	f.mon = mon
	return f
}

func (f *fixture) wait(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-f.out:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("no outcome within 10s")
		return Outcome{}
	}
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	es, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range es {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func readSidecar(t *testing.T, dest string) ErrorReport {
	t.Helper()
	b, err := os.ReadFile(dest + sidecarSuffix)
	require.NoError(t, err)
	var r ErrorReport
	require.NoError(t, json.Unmarshal(b, &r))
	return r
}

func TestMonitor_HappyPath(t *testing.T) {
	f := newFixture(t, llmtest.Returning("stub", llmtest.OfficeDepot), nil)
	path := llmtest.WritePDF(t, f.inbox, "office-depot.pdf")

	out, ok := f.mon.ProcessNow(context.Background(), path)
	require.True(t, ok)
	require.True(t, out.Succeeded(), out.Err)
	assert.Nil(t, out.Failure)
	assert.NoError(t, out.Err)
	assert.False(t, out.Duplicate)

	require.Equal(t, 1, f.gw.count())
	rec := f.gw.saved[0]
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "2025-10-20", rec.DateString())
	assert.Equal(t, "Office Depot", rec.VendorOrCustomer)
	assert.Equal(t, "52.52", rec.Amount.StringFixed(2))
	assert.Equal(t, "Office Supplies", rec.Category)
	assert.Equal(t, constants.Expense, rec.Type)
	assert.True(t, rec.TaxAmount.IsZero())
	assert.Equal(t, out.ArchivedTo, rec.SourceDocument)
	assert.FileExists(t, rec.SourceDocument)

	assert.NoFileExists(t, path)
	assert.FileExists(t, out.ArchivedTo)
	assert.Equal(t, f.mon.Archiver().ProcessedDir, filepath.Dir(out.ArchivedTo))
	assert.Empty(t, entries(t, f.mon.Archiver().ReviewDir))
	assert.Equal(t, constants.FileArchivedSuccess, f.mon.State(path))
}

func TestMonitor_NegativeAmountGoesToReview(t *testing.T) {
	fields := llmtest.OfficeDepot
	fields.Amount = "-52.52"
	f := newFixture(t, llmtest.Returning("stub", fields), nil)
	path := llmtest.WritePDF(t, f.inbox, "refund.pdf")

	out, ok := f.mon.ProcessNow(context.Background(), path)
	require.True(t, ok)
	assert.Equal(t, constants.FileArchivedFailed, out.State)
	require.NotNil(t, out.Failure)
	assert.Equal(t, llm.KindValidation, out.Failure.Kind)
	assert.Zero(t, f.gw.count())

	assert.NoFileExists(t, path)
	assert.Equal(t, f.mon.Archiver().ReviewDir, filepath.Dir(out.ArchivedTo))
	report := readSidecar(t, out.ArchivedTo)
	assert.Equal(t, "validation", report.Kind)
	require.NotNil(t, report.RawFields)
	assert.Equal(t, "-52.52", report.RawFields.Amount)
	require.NotEmpty(t, report.Violations)
	assert.Equal(t, "amount", report.Violations[0].Field)
}

func TestMonitor_ProviderTimeoutIsNetwork(t *testing.T) {
	stub := &llmtest.Stub{ProviderName: "slow", Fn: func(ctx context.Context, _ llm.Document, _ []string) llm.Result {
		<-ctx.Done()
		return llm.Failed("slow", llm.ClassifyTransport(ctx.Err()))
	}}
	f := newFixture(t, stub, nil)
	path := llmtest.WritePDF(t, f.inbox, "slow.pdf")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, ok := f.mon.ProcessNow(ctx, path)
	require.True(t, ok)
	require.NotNil(t, out.Failure)
	assert.Equal(t, llm.KindNetwork, out.Failure.Kind)
	assert.Equal(t, constants.FileArchivedFailed, out.State)
	assert.Zero(t, f.gw.count())
	assert.Equal(t, "network", readSidecar(t, out.ArchivedTo).Kind)
}

func TestMonitor_StopDeadlineStillArchivesInFlight(t *testing.T) {
	stub := &llmtest.Stub{ProviderName: "stuck", Fn: func(ctx context.Context, _ llm.Document, _ []string) llm.Result {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return llm.Failed("stuck", llm.NewError(llm.KindNetwork, "cancelled", ctx.Err()))
	}}
	f := newFixture(t, stub, nil)
	path := llmtest.WritePDF(t, f.inbox, "stuck.pdf")

	queued, err := f.mon.Submit(context.Background(), path)
	require.NoError(t, err)
	require.True(t, queued)
	require.Eventually(t, func() bool { return f.mon.State(path) == constants.FileProcessing }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.mon.Stop(ctx), context.DeadlineExceeded)

	// everything below must already hold when Stop returns
	assert.NoFileExists(t, path)
	assert.Len(t, entries(t, f.mon.Archiver().ReviewDir), 2, "document plus its error report")
	assert.Equal(t, constants.FileArchivedFailed, f.mon.State(path))
	select {
	case o := <-f.out:
		assert.Equal(t, path, o.Path)
		require.NotNil(t, o.Failure)
		assert.Equal(t, llm.KindNetwork, o.Failure.Kind)
	default:
		t.Fatal("outcome not reported before Stop returned")
	}
}

func TestMonitor_ProcessNowRefusedAfterStop(t *testing.T) {
	stub := llmtest.Returning("stub", llmtest.OfficeDepot)
	f := newFixture(t, stub, nil)
	require.NoError(t, f.mon.Stop(context.Background()))

	path := llmtest.WritePDF(t, f.inbox, "late.pdf")
	out, ok := f.mon.ProcessNow(context.Background(), path)
	assert.False(t, ok)
	assert.ErrorIs(t, out.Err, async.ErrClosed)
	assert.FileExists(t, path)
	assert.Empty(t, f.mon.State(path))
	assert.Zero(t, stub.Calls())
}

func TestMonitor_UnstorableRecordGoesToReview(t *testing.T) {
	inbox := t.TempDir()
	gw := newMemoryGateway()
	// a record without a fingerprint must never reach the store
	proc := extractorFunc(func(_ context.Context, path string) (*entity.Transaction, *pipeline.ProcessingError) {
		return &entity.Transaction{
			Date:             time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC),
			Type:             constants.Expense,
			Category:         "Travel",
			VendorOrCustomer: "Metro",
			Amount:           decimal.NewFromInt(3),
			SourceDocument:   path,
		}, nil
	})
	mon, err := NewMonitor(MonitorConfig{InboxDir: inbox}, proc, gw, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mon.Stop(context.Background()) })

	path := llmtest.WritePDF(t, inbox, "ticket.pdf")
	out, ok := mon.ProcessNow(context.Background(), path)
	require.True(t, ok)
	assert.ErrorIs(t, out.Err, common.ErrValidation)
	assert.Equal(t, constants.FileArchivedFailed, out.State)
	assert.Zero(t, gw.count())
	assert.Equal(t, "internal", readSidecar(t, out.ArchivedTo).Kind)
}

func TestMonitor_UnsupportedFilesAreNeverQueued(t *testing.T) {
	stub := llmtest.Returning("stub", llmtest.OfficeDepot)
	f := newFixture(t, stub, nil)
	docx := llmtest.WriteFile(t, f.inbox, "letter.docx", []byte("PK\x03\x04"))
	hidden := llmtest.WritePDF(t, f.inbox, ".partial.pdf")

	for _, p := range []string{docx, hidden} {
		queued, err := f.mon.Submit(context.Background(), p)
		require.NoError(t, err)
		assert.False(t, queued, p)

		_, ok := f.mon.ProcessNow(context.Background(), p)
		assert.False(t, ok, p)
		assert.FileExists(t, p)
		assert.Empty(t, f.mon.State(p))
	}

	require.NoError(t, f.mon.Start(context.Background()))
	llmtest.WriteFile(t, f.inbox, "later.docx", []byte("PK\x03\x04"))
	select {
	case o := <-f.out:
		t.Fatalf("unexpected outcome for %s", o.Path)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Zero(t, stub.Calls())
	assert.Empty(t, entries(t, f.mon.Archiver().ProcessedDir))
	assert.Empty(t, entries(t, f.mon.Archiver().ReviewDir))
}

func TestMonitor_WatchesInbox(t *testing.T) {
	f := newFixture(t, llmtest.Returning("stub", llmtest.OfficeDepot), nil)
	existing := llmtest.WritePDF(t, f.inbox, "already-here.pdf")

	require.NoError(t, f.mon.Start(context.Background()))
	assert.True(t, f.mon.Running())

	first := f.wait(t)
	assert.Equal(t, existing, first.Path)
	assert.True(t, first.Succeeded())

	dropped := llmtest.WritePNG(t, f.inbox, "dropped.png")
	second := f.wait(t)
	assert.Equal(t, dropped, second.Path)
	assert.True(t, second.Succeeded())

	assert.Equal(t, 2, f.gw.count())
	assert.Len(t, entries(t, f.mon.Archiver().ProcessedDir), 2)
	assert.Empty(t, entries(t, f.inbox))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.mon.Stop(ctx))
	assert.False(t, f.mon.Running())

	_, err := f.mon.Submit(context.Background(), llmtest.WritePDF(t, f.inbox, "too-late.pdf"))
	assert.Error(t, err)
}

func TestMonitor_ProcessesOneAtATime(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	stub := &llmtest.Stub{ProviderName: "stub", Fn: func(context.Context, llm.Document, []string) llm.Result {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return llm.Result{Provider: "stub", Fields: llmtest.OfficeDepot}
	}}
	f := newFixture(t, stub, nil)
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"} {
		llmtest.WritePDF(t, f.inbox, name)
	}

	require.NoError(t, f.mon.Start(context.Background()))
	for i := 0; i < 4; i++ {
		assert.True(t, f.wait(t).Succeeded())
	}
	assert.Equal(t, 1, peak)
}

func TestMonitor_DuplicateDocumentIsNotSavedTwice(t *testing.T) {
	f := newFixture(t, llmtest.Returning("stub", llmtest.OfficeDepot), nil)
	body := []byte("%PDF-1.4\nsame bytes\n")

	first, ok := f.mon.ProcessNow(context.Background(), llmtest.WriteFile(t, f.inbox, "scan.pdf", body))
	require.True(t, ok)
	require.True(t, first.Succeeded())

	second, ok := f.mon.ProcessNow(context.Background(), llmtest.WriteFile(t, f.inbox, "scan-copy.pdf", body))
	require.True(t, ok)
	assert.True(t, second.Succeeded())
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, f.gw.count())
	assert.Len(t, entries(t, f.mon.Archiver().ProcessedDir), 2)
}

func TestMonitor_StorageFaultGoesToReview(t *testing.T) {
	f := newFixture(t, llmtest.Returning("stub", llmtest.OfficeDepot), nil)
	f.gw.saveErr = errors.New("disk full")
	path := llmtest.WritePDF(t, f.inbox, "r.pdf")

	out, ok := f.mon.ProcessNow(context.Background(), path)
	require.True(t, ok)
	assert.Equal(t, constants.FileArchivedFailed, out.State)
	assert.Nil(t, out.Failure)
	assert.ErrorContains(t, out.Err, "disk full")
	assert.Equal(t, "internal", readSidecar(t, out.ArchivedTo).Kind)
}

func TestMonitor_RetriesRateLimit(t *testing.T) {
	stub := &llmtest.Stub{ProviderName: "stub"}
	stub.Fn = func(context.Context, llm.Document, []string) llm.Result {
		if stub.Calls() == 1 {
			e := llm.Errorf(llm.KindRateLimit, "slow down")
			e.RetryAfter = 5 * time.Millisecond
			return llm.Failed("stub", e)
		}
		return llm.Result{Provider: "stub", Fields: llmtest.OfficeDepot}
	}
	f := newFixture(t, stub, func(c *MonitorConfig) {
		c.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 50 * time.Millisecond, RetryRateLimit: true}
	})

	out, ok := f.mon.ProcessNow(context.Background(), llmtest.WritePDF(t, f.inbox, "r.pdf"))
	require.True(t, ok)
	assert.True(t, out.Succeeded())
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, stub.Calls())
}

func TestMonitor_RateLimitWithoutRetryGoesToReview(t *testing.T) {
	f := newFixture(t, llmtest.Failing("stub", llm.KindRateLimit), nil)
	out, ok := f.mon.ProcessNow(context.Background(), llmtest.WritePDF(t, f.inbox, "r.pdf"))
	require.True(t, ok)
	require.NotNil(t, out.Failure)
	assert.Equal(t, llm.KindRateLimit, out.Failure.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, constants.FileArchivedFailed, out.State)
}

func TestMonitor_HandledFileIsNotAdmittedAgain(t *testing.T) {
	stub := llmtest.Returning("stub", llmtest.OfficeDepot)
	f := newFixture(t, stub, nil)
	path := llmtest.WritePDF(t, f.inbox, "r.pdf")

	out, ok := f.mon.ProcessNow(context.Background(), path)
	require.True(t, ok)
	require.True(t, out.Succeeded())

	_, again := f.mon.ProcessNow(context.Background(), path)
	assert.False(t, again)
	queued, err := f.mon.Submit(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 1, stub.Calls())
	assert.Len(t, entries(t, f.mon.Archiver().ProcessedDir), 1)
}

func TestNewMonitor_RequiresInbox(t *testing.T) {
	_, err := NewMonitor(MonitorConfig{}, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "CONFIG_ERROR", common.CodeOf(err))
}
