package activity

import (
	"context"
	"errors"

	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/model"
)

// Batch contains the activities that execute certificate batches on a
// Temporal worker.
type Batch struct {
	proc core.ItemProcessor
}

// NewBatch creates a new Batch activity struct.
func NewBatch(proc core.ItemProcessor) *Batch {
	return &Batch{proc: proc}
}

// GenerateBatchItem generates one certificate of a batch. Item failures are
// carried on the returned record, so the activity itself only fails when the
// worker does.
func (a *Batch) GenerateBatchItem(ctx context.Context, params model.BatchItemParams) (*model.CertificateRecord, error) {
	rec := a.proc.ProcessItem(ctx, params.BatchID, params.Index, params.Request)
	return &rec, nil
}

// FailBatchItem records a FAILED outcome for an item whose activity could
// not complete.
func (a *Batch) FailBatchItem(ctx context.Context, params model.BatchItemFailure) (*model.CertificateRecord, error) {
	rec := a.proc.FailItem(ctx, params.BatchID, params.Index, params.Request, errors.New(params.Error))
	return &rec, nil
}

// CompleteBatch records the final status of a batch.
func (a *Batch) CompleteBatch(ctx context.Context, batchID string) (*model.BatchProgress, error) {
	return a.proc.Complete(ctx, batchID)
}
