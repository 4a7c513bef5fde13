// Package transactions is the review-and-edit surface over stored records. Every write
// passes through the same normalizer as the automatic pipeline.
package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/normalize"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
)

type Service struct {
	repo         repository.TransactionRepository
	categories   categories.Provider
	jurisdiction string
	logger       *slog.Logger
}

func NewService(repo repository.TransactionRepository, cats categories.Provider, jurisdiction string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, categories: cats, jurisdiction: jurisdiction, logger: logger}
}

// Accept validates reviewer-confirmed fields and stores them. Rejections come back as a
// *pipeline.ProcessingError of kind validation; a known fingerprint yields common.ErrDuplicate.
func (s *Service) Accept(ctx context.Context, raw llm.RawFields, source, fingerprint string) (*entity.Transaction, error) {
	rec, err := s.validate(ctx, raw, source, fingerprint)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("transactions.accept.ok", "id", rec.ID, "source", source)
	return rec, nil
}

// Archive moves an accepted document to its final home.
type Archive interface {
	ProcessedPath(path string) string
	MoveTo(path, dest string) (string, error)
}

// AcceptFile is Accept for a document on disk. The record is stored under the name the
// file gets in the processed archive, then the file is moved there. If the move fails
// the record is removed again so the document can be accepted later.
func (s *Service) AcceptFile(ctx context.Context, raw llm.RawFields, path, fingerprint string, ar Archive) (*entity.Transaction, error) {
	rec, err := s.validate(ctx, raw, path, fingerprint)
	if err != nil {
		return nil, err
	}
	dest := ar.ProcessedPath(path)
	rec.SourceDocument = dest
	if _, err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := ar.MoveTo(path, dest); err != nil {
		if derr := s.repo.Delete(ctx, rec.ID); derr != nil {
			s.logger.Error("transactions.accept.rollback_failed", "id", rec.ID, "error", derr)
		}
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}
	s.logger.Info("transactions.accept.ok", "id", rec.ID, "source", dest)
	return rec, nil
}

func (s *Service) validate(ctx context.Context, raw llm.RawFields, source, fingerprint string) (*entity.Transaction, error) {
	n, err := s.normalizer(ctx)
	if err != nil {
		return nil, err
	}
	out := n.Normalize(raw, source)
	if !out.Valid() {
		return nil, rejection(source, raw, out)
	}
	rec := out.Record
	rec.Fingerprint = fingerprint
	rec.Provider = "manual"
	if err := normalize.ValidateRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update replaces the editable fields of record id after validation.
func (s *Service) Update(ctx context.Context, id int64, raw llm.RawFields) (*entity.Transaction, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.normalizer(ctx)
	if err != nil {
		return nil, err
	}
	out := n.Normalize(raw, existing.SourceDocument)
	if !out.Valid() {
		return nil, rejection(existing.SourceDocument, raw, out)
	}
	rec := out.Record
	rec.ID = existing.ID
	rec.Fingerprint = existing.Fingerprint
	rec.Provider = existing.Provider
	rec.CreatedAt = existing.CreatedAt
	if err := normalize.ValidateRecord(rec); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("transactions.update.ok", "id", id)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*entity.Transaction, error) {
	return s.repo.Get(ctx, id)
}

// List returns records dated within [from, to]; nil bounds are open.
func (s *Service) List(ctx context.Context, from, to *time.Time) ([]*entity.Transaction, error) {
	return s.repo.ListByDateRange(ctx, from, to, "")
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("transactions.delete.ok", "id", id)
	return nil
}

func (s *Service) normalizer(ctx context.Context) (*normalize.Normalizer, error) {
	list, err := s.categories.Categories(ctx, s.jurisdiction)
	if err != nil {
		return nil, common.WrapError(err, "load categories")
	}
	return normalize.New(list), nil
}

func rejection(source string, raw llm.RawFields, out normalize.Outcome) *pipeline.ProcessingError {
	return &pipeline.ProcessingError{
		Kind:       llm.KindValidation,
		Message:    fmt.Sprintf("%d field(s) failed validation", len(out.Violations)),
		Path:       source,
		Provider:   "manual",
		RawFields:  &raw,
		Violations: out.Violations,
	}
}
