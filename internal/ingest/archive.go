package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
)

const sidecarSuffix = ".error.json"

// ErrorReport is written next to a file archived for review so a UI can show
// what was extracted and why it was rejected.
type ErrorReport struct {
	Kind       string                   `json:"kind"`
	Message    string                   `json:"message"`
	Provider   string                   `json:"provider,omitempty"`
	Source     string                   `json:"source"`
	RawFields  *llm.RawFields           `json:"raw_fields,omitempty"`
	Violations []common.ValidationError `json:"violations,omitempty"`
	RetryAfter string                   `json:"retry_after,omitempty"`
	At         time.Time                `json:"at"`
}

// ReportFromFailure converts a classified processing failure.
func ReportFromFailure(perr *pipeline.ProcessingError) ErrorReport {
	r := ErrorReport{
		Kind:       string(perr.Kind),
		Message:    perr.Message,
		Provider:   perr.Provider,
		Source:     perr.Path,
		RawFields:  perr.RawFields,
		Violations: perr.Violations,
	}
	if perr.RetryAfter > 0 {
		r.RetryAfter = perr.RetryAfter.String()
	}
	return r
}

// ReportFromFault describes an unexpected (unclassified) failure such as a storage error.
func ReportFromFault(path string, err error) ErrorReport {
	return ErrorReport{Kind: "internal", Message: err.Error(), Source: path}
}

// Archiver moves handled files out of the inbox. Files are never deleted.
type Archiver struct {
	ProcessedDir string
	ReviewDir    string
	Now          func() time.Time

	moved  *cache.Cache // source path -> archived path
	logger *slog.Logger
}

func NewArchiver(processedDir, reviewDir string, logger *slog.Logger) (*Archiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, d := range []string{processedDir, reviewDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, common.NewAppError("ARCHIVE_ERROR", "create archive dir "+d, err)
		}
	}
	return &Archiver{
		ProcessedDir: processedDir,
		ReviewDir:    reviewDir,
		Now:          time.Now,
		moved:        cache.New(time.Hour, 10*time.Minute),
		logger:       logger,
	}, nil
}

// ToProcessed archives a successfully recorded document.
func (a *Archiver) ToProcessed(path string) (string, error) {
	return a.move(path, a.ProcessedDir)
}

// ProcessedPath picks the name path will get in the processed archive without moving
// anything, so a record can be stored under its final location before the move.
func (a *Archiver) ProcessedPath(path string) string {
	return a.reserve(path, a.ProcessedDir)
}

// MoveTo archives path under a destination obtained from ProcessedPath.
func (a *Archiver) MoveTo(path, dest string) (string, error) {
	if prev, ok := a.already(path); ok {
		return prev, nil
	}
	if _, err := os.Lstat(dest); !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("move %s: destination %s is taken", path, dest)
	}
	return a.rename(path, dest)
}

// ToReview archives a failed document and writes its error report beside it.
func (a *Archiver) ToReview(path string, report ErrorReport) (string, error) {
	dest, err := a.move(path, a.ReviewDir)
	if err != nil {
		return dest, err
	}
	report.Source = path
	if report.At.IsZero() {
		report.At = a.Now().UTC()
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return dest, fmt.Errorf("encode error report: %w", err)
	}
	if err := os.WriteFile(dest+sidecarSuffix, b, 0o644); err != nil {
		// the document is already safe in review; a missing sidecar only loses detail
		a.logger.Warn("archive.sidecar.failed", "dest", dest, "error", err)
	}
	return dest, nil
}

// move is idempotent per source path: a second call for a file this archiver
// already moved returns the first destination and touches nothing.
func (a *Archiver) move(path, dir string) (string, error) {
	if prev, ok := a.already(path); ok {
		return prev, nil
	}
	return a.rename(path, a.reserve(path, dir))
}

func (a *Archiver) already(path string) (string, bool) {
	prev, ok := a.moved.Get(path)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return "", false
	}
	a.logger.Debug("archive.already_moved", "path", path, "dest", prev)
	return prev.(string), true
}

// reserve returns a free stamped name under dir. rename replaces silently, so an
// occupied name gets a fresh stamp.
func (a *Archiver) reserve(path, dir string) string {
	dest := filepath.Join(dir, a.stampedName(filepath.Base(path)))
	for i := 0; i < 3; i++ {
		if _, err := os.Lstat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(dir, a.stampedName(filepath.Base(path)))
	}
	return dest
}

func (a *Archiver) rename(path, dest string) (string, error) {
	if err := os.Rename(path, dest); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("move %s: %w", path, err)
		}
		if err := copyThenRemove(path, dest); err != nil {
			return "", fmt.Errorf("move %s across devices: %w", path, err)
		}
	}
	a.moved.SetDefault(path, dest)
	a.logger.Info("archive.moved", "path", path, "dest", dest)
	return dest, nil
}

// stampedName keeps archived names unique and sortable: YYYYMMDD-HHMMSS-<8 hex>-<name>.
func (a *Archiver) stampedName(base string) string {
	return fmt.Sprintf("%s-%s-%s", a.Now().Format("20060102-150405"), uuid.NewString()[:8], base)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	_ = in.Close()
	return os.Remove(src)
}
