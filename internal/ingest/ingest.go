package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
)

// Gateway is the persistence boundary the monitor writes through.
type Gateway interface {
	Save(ctx context.Context, t *entity.Transaction) (int64, error)
	Exists(ctx context.Context, fingerprint string) (bool, error)
}

// Extractor turns a file into an unsaved record or a classified failure.
type Extractor interface {
	Process(ctx context.Context, path string) (*entity.Transaction, *pipeline.ProcessingError)
}

// Outcome is reported once per document that reaches a terminal state.
type Outcome struct {
	Path       string
	ArchivedTo string
	State      constants.FileState
	Record     *entity.Transaction // saved (or duplicate) record on success
	Duplicate  bool                // fingerprint already stored; nothing saved
	Failure    *pipeline.ProcessingError
	Err        error // unexpected fault (storage, archive move)
	Attempts   int
	Elapsed    time.Duration
}

// Succeeded reports whether the document ended in the processed archive.
func (o Outcome) Succeeded() bool { return o.State == constants.FileArchivedSuccess }
