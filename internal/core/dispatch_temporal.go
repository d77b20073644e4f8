package core

import (
	"context"
	"fmt"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/certgen/internal/model"
)

// GenerateBatchWorkflowName is the registered name of the batch workflow.
const GenerateBatchWorkflowName = "GenerateBatchWorkflow"

// TemporalDispatcher runs batch jobs as Temporal workflows, so accepted
// batches survive restarts of the API process.
type TemporalDispatcher struct {
	tc        temporalclient.Client
	taskQueue string
}

func NewTemporalDispatcher(tc temporalclient.Client, taskQueue string) *TemporalDispatcher {
	return &TemporalDispatcher{tc: tc, taskQueue: taskQueue}
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, job model.BatchJob) error {
	_, err := d.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID("batch", job.BatchID),
		TaskQueue: d.taskQueue,
	}, GenerateBatchWorkflowName, job)
	if err != nil {
		return fmt.Errorf("start %s: %w", GenerateBatchWorkflowName, err)
	}
	return nil
}

// workflowID builds a human-readable Temporal workflow ID from a prefix and
// the resource's unique ID.
func workflowID(prefix, id string) string {
	return fmt.Sprintf("%s-%s", prefix, id)
}
