// Package pipeline runs one document through extraction and normalization.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/normalize"
)

// Processor coordinates document loading, provider extraction and normalization.
// It never persists and never moves files.
type Processor struct {
	Logger       *slog.Logger
	Provider     llm.Provider
	Categories   categories.Provider
	Jurisdiction string
}

func NewProcessor(logger *slog.Logger, provider llm.Provider, cats categories.Provider, jurisdiction string) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Provider: provider, Categories: cats, Jurisdiction: jurisdiction}
}

// Process turns the file at path into an unsaved Transaction, or a ProcessingError
// carrying exactly one kind. Exactly one of the two results is non-nil.
func (p *Processor) Process(ctx context.Context, path string) (*entity.Transaction, *ProcessingError) {
	if common.RequestIDFromContext(ctx) == "" {
		ctx = common.WithRequestID(ctx, uuid.New().String())
	}
	ctx = common.WithDocument(ctx, path)
	logger := common.LoggerFromContext(ctx, p.Logger).With("path", path)
	start := time.Now()

	doc, lerr := llm.LoadDocument(path)
	if lerr != nil {
		logger.Warn("pipeline.load.failed", "kind", lerr.Kind, "error", lerr)
		return nil, fromExtraction(path, p.providerName(), lerr)
	}

	cats, err := p.Categories.Categories(ctx, p.Jurisdiction)
	if err != nil {
		logger.Error("pipeline.categories.failed", "jurisdiction", p.Jurisdiction, "error", err)
		return nil, &ProcessingError{
			Kind:     llm.KindValidation,
			Message:  "category list unavailable",
			Path:     path,
			Provider: p.providerName(),
			Violations: []common.ValidationError{{
				Field: "category", Value: p.Jurisdiction, Message: "no category list for jurisdiction: " + err.Error(),
			}},
			Cause: err,
		}
	}

	logger.Info("pipeline.process.start",
		"provider", p.providerName(),
		"format", doc.Format,
		"bytes", len(doc.Data),
		"categories", len(cats),
	)

	res := p.extract(ctx, doc, cats, logger)
	if !res.Success() {
		logger.Warn("pipeline.extract.failed",
			"kind", res.Err.Kind,
			"error", res.Err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fromExtraction(path, res.Provider, res.Err)
	}

	out := normalize.New(cats).Normalize(res.Fields, path)
	if !out.Valid() {
		fields := res.Fields
		logger.Warn("pipeline.normalize.rejected", "violations", len(out.Violations))
		return nil, &ProcessingError{
			Kind:        llm.KindValidation,
			Message:     fmt.Sprintf("%d field(s) failed validation", len(out.Violations)),
			Path:        path,
			Provider:    res.Provider,
			RawFields:   &fields,
			Violations:  out.Violations,
			RawResponse: res.RawResponse,
		}
	}

	rec := out.Record
	rec.Fingerprint = doc.Fingerprint()
	rec.Provider = res.Provider
	if rec.Notes == "" {
		rec.Notes = res.Notes
	}

	logger.Info("pipeline.process.ok",
		"vendor", rec.VendorOrCustomer,
		"amount", rec.Amount.String(),
		"category", rec.Category,
		"flags", rec.Flags,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// extract calls the provider, turning a panic into malformed_response.
func (p *Processor) extract(ctx context.Context, doc llm.Document, cats []string, logger *slog.Logger) (res llm.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline.extract.panic", "panic", r)
			res = llm.Failed(p.providerName(), llm.Errorf(llm.KindMalformedResponse, "provider panicked: %v", r))
		}
	}()
	res = p.Provider.Extract(ctx, doc, cats)
	if res.Provider == "" {
		res.Provider = p.providerName()
	}
	if res.Err != nil && !res.Err.Kind.Valid() {
		res.Err.Kind = llm.KindMalformedResponse
	}
	return res
}

func (p *Processor) providerName() string {
	if p.Provider == nil {
		return ""
	}
	return p.Provider.Name()
}
