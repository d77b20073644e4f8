package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/certgen/internal/core"
)

// ErrorTypingInterceptor is a Temporal worker interceptor that converts
// activity errors into typed application errors. Validation and generation
// failures become non-retryable and carry their error kind as the type, so
// the Temporal UI shows why an activity failed. Other errors are typed with
// the activity name.
type ErrorTypingInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ErrorTypingInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &errorTypingActivityInterceptor{next: next}
}

type errorTypingActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *errorTypingActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *errorTypingActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err == nil {
		return result, nil
	}
	return result, typeError(err, activity.GetInfo(ctx).ActivityType.Name)
}

// typeError wraps err in a temporal.ApplicationError unless it already is one.
func typeError(err error, activityName string) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return temporal.NewNonRetryableApplicationError(err.Error(), core.KindValidation, err)
	}
	var genErr *core.GenerationError
	if errors.As(err, &genErr) {
		return temporal.NewNonRetryableApplicationError(err.Error(), genErr.Kind, err)
	}
	return temporal.NewApplicationError(err.Error(), activityName, err)
}
