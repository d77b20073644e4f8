package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/certgen/internal/model"
)

// GenerateBatchWorkflow generates every item of a batch with at most
// job.Parallelism items in flight, then records the batch's final status.
// Items are never retried: a failed generation is terminal.
func GenerateBatchWorkflow(ctx workflow.Context, job model.BatchJob) (*model.BatchProgress, error) {
	logger := workflow.GetLogger(ctx)

	itemCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	bookkeepingCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})

	limit := max(job.Parallelism, 1)
	selector := workflow.NewSelector(ctx)
	inflight := 0

	for i, item := range job.Items {
		if inflight == limit {
			selector.Select(ctx)
			inflight--
		}
		params := model.BatchItemParams{BatchID: job.BatchID, Index: i, Request: item}
		future := workflow.ExecuteActivity(itemCtx, "GenerateBatchItem", params)
		selector.AddFuture(future, func(f workflow.Future) {
			if err := f.Get(ctx, nil); err != nil {
				logger.Error("batch item activity failed", "batchID", job.BatchID, "index", i, "error", err)
				failErr := workflow.ExecuteActivity(bookkeepingCtx, "FailBatchItem", model.BatchItemFailure{
					BatchItemParams: params,
					Error:           err.Error(),
				}).Get(ctx, nil)
				if failErr != nil {
					logger.Error("failed to record aborted batch item", "batchID", job.BatchID, "index", i, "error", failErr)
				}
			}
		})
		inflight++
	}
	for ; inflight > 0; inflight-- {
		selector.Select(ctx)
	}

	var progress model.BatchProgress
	if err := workflow.ExecuteActivity(bookkeepingCtx, "CompleteBatch", job.BatchID).Get(ctx, &progress); err != nil {
		return nil, err
	}
	logger.Info("batch finished", "batchID", job.BatchID, "status", progress.Status,
		"completed", progress.Completed, "failed", progress.Failed)
	return &progress, nil
}
