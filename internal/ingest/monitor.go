package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/async"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/normalize"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
)

const (
	defaultJobTimeout   = 5 * time.Minute
	persistTimeout      = 30 * time.Second
	terminalMemoryTTL   = 30 * time.Minute
	terminalMemorySweep = 5 * time.Minute
)

type MonitorConfig struct {
	InboxDir     string
	ProcessedDir string
	ReviewDir    string
	Debounce     time.Duration
	InitialScan  bool
	QueueSize    int
	JobTimeout   time.Duration // whole-document bound, retries included
	Retry        RetryPolicy
	OnOutcome    func(Outcome)
}

type terminal struct {
	state constants.FileState
	at    time.Time
}

// Monitor watches the inbox and pushes each new document, one at a time, through
// extraction, persistence and archiving.
type Monitor struct {
	cfg      MonitorConfig
	proc     Extractor
	gw       Gateway
	archiver *Archiver
	queue    async.Queue
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]constants.FileState // non-terminal documents
	done   *cache.Cache                   // path -> terminal, so our own moves never re-queue

	inflight sync.Mutex // one document at a time, whatever the entry point

	running     atomic.Bool
	stopping    atomic.Bool
	cancelWatch context.CancelFunc
	watchWG     sync.WaitGroup
}

func NewMonitor(cfg MonitorConfig, proc Extractor, gw Gateway, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxDir == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "inbox directory is required", common.ErrInvalidInput)
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.InboxDir, "processed")
	}
	if cfg.ReviewDir == "" {
		cfg.ReviewDir = filepath.Join(cfg.InboxDir, "needs-review")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	for _, d := range []*string{&cfg.InboxDir, &cfg.ProcessedDir, &cfg.ReviewDir} {
		abs, err := filepath.Abs(*d)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "resolve "+*d, err)
		}
		*d = abs
	}
	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "create inbox "+cfg.InboxDir, err)
	}
	archiver, err := NewArchiver(cfg.ProcessedDir, cfg.ReviewDir, logger)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:      cfg,
		proc:     proc,
		gw:       gw,
		archiver: archiver,
		logger:   logger,
		states:   map[string]constants.FileState{},
		done:     cache.New(terminalMemoryTTL, terminalMemorySweep),
	}
	m.queue = async.NewProcessorQueue(
		func(ctx context.Context, job async.Job) {
			m.handle(common.WithRequestID(ctx, job.TraceID), job.Path)
		},
		logger,
		async.WithWorkers(1),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.JobTimeout),
	)
	return m, nil
}

// Archiver exposes the archive mover (the CLI reuses it for one-shot runs).
func (m *Monitor) Archiver() *Archiver { return m.archiver }

// Running reports whether the watcher is live and not shutting down.
func (m *Monitor) Running() bool { return m.running.Load() && !m.stopping.Load() }

// Start begins watching the inbox. Files already present are queued first, oldest first.
func (m *Monitor) Start(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	events, errs, err := StartWatcher(wctx, WatchConfig{
		Root:        m.cfg.InboxDir,
		Exclude:     []string{m.cfg.ProcessedDir, m.cfg.ReviewDir},
		InitialScan: m.cfg.InitialScan,
		Debounce:    m.cfg.Debounce,
		Logger:      m.logger,
	})
	if err != nil {
		cancel()
		return common.NewAppError("WATCH_ERROR", "start watcher on "+m.cfg.InboxDir, err)
	}
	m.cancelWatch = cancel
	m.running.Store(true)
	m.logger.Info("monitor.started",
		"inbox", m.cfg.InboxDir,
		"processed", m.cfg.ProcessedDir,
		"review", m.cfg.ReviewDir,
		"initial_scan", m.cfg.InitialScan,
	)

	m.watchWG.Add(2)
	go func() {
		defer m.watchWG.Done()
		for p := range events {
			if _, err := m.Submit(wctx, p); err != nil && !errors.Is(err, async.ErrClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Error("monitor.submit.failed", "path", p, "error", err)
			}
		}
	}()
	go func() {
		defer m.watchWG.Done()
		for err := range errs {
			m.logger.Warn("monitor.watch.error", "error", err)
		}
	}()
	return nil
}

// Submit queues path unless it is unsupported, already pending, or already handled.
// It reports whether the document was queued.
func (m *Monitor) Submit(ctx context.Context, path string) (bool, error) {
	if m.stopping.Load() {
		return false, async.ErrClosed
	}
	abs, ok := m.admit(path)
	if !ok {
		return false, nil
	}
	err := m.queue.Enqueue(ctx, async.Job{Path: abs, SubmittedAt: time.Now(), TraceID: uuid.NewString()})
	if err != nil {
		m.forget(abs)
		return false, err
	}
	return true, nil
}

// ProcessNow handles path synchronously on the caller's goroutine, still one document at a time.
// Once Stop has begun it refuses with async.ErrClosed in the outcome.
func (m *Monitor) ProcessNow(ctx context.Context, path string) (Outcome, bool) {
	if m.stopping.Load() {
		return Outcome{Path: path, Err: async.ErrClosed}, false
	}
	abs, ok := m.admit(path)
	if !ok {
		return Outcome{Path: path}, false
	}
	return m.handle(ctx, abs), true
}

// State reports the lifecycle state of path ("" if never seen or forgotten).
func (m *Monitor) State(path string) constants.FileState {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[abs]; ok {
		return s
	}
	if t, ok := m.done.Get(abs); ok {
		return t.(terminal).state
	}
	return ""
}

// Stop ends watching, lets queued and in-flight documents finish within ctx, then returns.
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.stopping.CompareAndSwap(false, true) {
		return nil
	}
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
	m.watchWG.Wait()
	m.queue.Shutdown(ctx)
	m.running.Store(false)
	m.logger.Info("monitor.stopped")
	return ctx.Err()
}

// admit registers a supported, present, not-yet-seen file as DISCOVERED then QUEUED.
func (m *Monitor) admit(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if !candidate(abs) {
		m.logger.Debug("monitor.skip.unsupported", "path", abs)
		return "", false
	}
	st, err := os.Stat(abs)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, pending := m.states[abs]; pending {
		return "", false
	}
	if v, ok := m.done.Get(abs); ok && !st.ModTime().After(v.(terminal).at) {
		return "", false
	}
	m.done.Delete(abs)
	m.setLocked(abs, constants.FileDiscovered)
	m.setLocked(abs, constants.FileQueued)
	return abs, true
}

func (m *Monitor) advance(path string, next constants.FileState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(path, next)
}

func (m *Monitor) setLocked(path string, next constants.FileState) {
	cur := m.states[path]
	if !cur.CanTransition(next) {
		m.logger.Warn("monitor.state.invalid", "path", path, "from", cur, "to", next)
	}
	if next.IsTerminal() {
		delete(m.states, path)
		m.done.SetDefault(path, terminal{state: next, at: time.Now()})
	} else {
		m.states[path] = next
	}
	m.logger.Debug("monitor.state", "path", path, "from", cur, "to", next)
}

func (m *Monitor) forget(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, path)
}

func (m *Monitor) handle(ctx context.Context, path string) Outcome {
	m.inflight.Lock()
	defer m.inflight.Unlock()

	logger := common.LoggerFromContext(ctx, m.logger).With("path", path)
	start := time.Now()
	out := Outcome{Path: path}

	if !eligible(path) {
		logger.Info("monitor.document.vanished")
		m.forget(path)
		out.Err = os.ErrNotExist
		return out
	}
	m.advance(path, constants.FileProcessing)

	var rec *entity.Transaction
	var perr *pipeline.ProcessingError
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		rec, perr = m.proc.Process(ctx, path)
		if !m.cfg.Retry.ShouldRetry(perr, attempt) {
			break
		}
		delay := m.cfg.Retry.Delay(attempt, perr.RetryAfter)
		logger.Warn("monitor.retry", "kind", perr.Kind, "attempt", attempt, "delay", delay)
		if !sleepCtx(ctx, delay) {
			break
		}
	}

	if perr != nil {
		out.Failure = perr
		m.toReview(&out, ReportFromFailure(perr), logger)
		return m.complete(out, start, logger)
	}

	// the record names the archived copy, not the inbox file that is about to move
	dest := m.archiver.ProcessedPath(path)
	rec.SourceDocument = dest

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	var dup bool
	err := normalize.ValidateRecord(rec)
	if err == nil {
		dup, err = m.gw.Exists(pctx, rec.Fingerprint)
	}
	if err == nil && !dup {
		var id int64
		id, err = m.gw.Save(pctx, rec)
		if errors.Is(err, common.ErrDuplicate) {
			dup, err = true, nil
		} else if err == nil {
			rec.ID = id
		}
	}
	if err != nil {
		out.Err = fmt.Errorf("persist: %w", err)
		logger.Error("monitor.persist.failed", "error", err)
		m.toReview(&out, ReportFromFault(path, out.Err), logger)
		return m.complete(out, start, logger)
	}

	out.Record = rec
	out.Duplicate = dup
	out.State = constants.FileArchivedSuccess
	dest, err = m.archiver.MoveTo(path, dest)
	if err != nil {
		// the record is stored; a restart rescans the file and sees it as a duplicate
		out.Err = err
		logger.Error("monitor.archive.failed", "error", err)
	}
	out.ArchivedTo = dest
	return m.complete(out, start, logger)
}

func (m *Monitor) toReview(out *Outcome, report ErrorReport, logger *slog.Logger) {
	out.State = constants.FileArchivedFailed
	dest, err := m.archiver.ToReview(out.Path, report)
	if err != nil {
		logger.Error("monitor.archive.failed", "error", err)
		out.Err = errors.Join(out.Err, err)
	}
	out.ArchivedTo = dest
}

func (m *Monitor) complete(out Outcome, start time.Time, logger *slog.Logger) Outcome {
	out.Elapsed = time.Since(start)
	m.advance(out.Path, out.State)

	attrs := []any{"state", out.State, "dest", out.ArchivedTo, "attempts", out.Attempts, "elapsed_ms", out.Elapsed.Milliseconds()}
	switch {
	case out.Failure != nil:
		logger.Warn("monitor.document.failed", append(attrs, "kind", out.Failure.Kind, "error", out.Failure)...)
	case out.Err != nil:
		logger.Error("monitor.document.fault", append(attrs, "error", out.Err)...)
	default:
		logger.Info("monitor.document.recorded", append(attrs, "id", out.Record.ID, "duplicate", out.Duplicate)...)
	}

	if m.cfg.OnOutcome != nil {
		m.cfg.OnOutcome(out)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
