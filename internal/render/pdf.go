// Package render rasterizes PDF pages for providers that only accept images.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// ErrUnavailable means the rasterizer binary is not installed.
var ErrUnavailable = errors.New("pdf rasterizer not available")

type Config struct {
	Pdftoppm string // binary name or path, default "pdftoppm"
	DPI      int
	MaxPages int
}

// Rasterizer renders PDFs to PNG via poppler's pdftoppm.
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// Available reports whether the configured binary can be found.
func (r *Rasterizer) Available() bool {
	if _, ok := r.runner.(ExecRunner); !ok {
		return true
	}
	_, err := exec.LookPath(r.cfg.Pdftoppm)
	return err == nil
}

// FirstPages renders up to MaxPages pages of pdf and returns PNG bytes in page order.
func (r *Rasterizer) FirstPages(ctx context.Context, pdf []byte) ([][]byte, error) {
	if !r.Available() {
		return nil, ErrUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "bk-render-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("render.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 200 -png -f 1 -l N <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", strconv.Itoa(r.cfg.DPI), "-png",
		"-f", "1", "-l", strconv.Itoa(r.cfg.MaxPages),
		in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, clip(string(errb), 512))
	}

	// collect generated pngs (page-1.png, page-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, b)
	}
	r.logger.Debug("render.pdf.ok", "pages", len(pages), "dpi", r.cfg.DPI)
	return pages, nil
}
