package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend fails the first failures calls to Put and Get.
type flakyBackend struct {
	*Local
	failures int
	calls    int
	err      error
}

func (f *flakyBackend) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.Local.Put(ctx, key, data, meta)
}

func (f *flakyBackend) Get(ctx context.Context, ref string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.Local.Get(ctx, ref)
}

func TestRetrying_SucceedsWithinBudget(t *testing.T) {
	flaky := &flakyBackend{Local: newTestLocal(t), failures: 2, err: errors.New("connection reset")}
	var retried []int
	r := WithRetry(flaky, RetryOptions{
		MaxRetries: 3,
		Base:       time.Millisecond,
		OnRetry:    func(op string, attempt int, _ error) { retried = append(retried, attempt) },
	})

	ref, err := r.Put(context.Background(), "certificates/x.pdf", []byte("x"), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetrying_ExhaustsBudget(t *testing.T) {
	cause := errors.New("connection reset")
	flaky := &flakyBackend{Local: newTestLocal(t), failures: 10, err: cause}
	r := WithRetry(flaky, RetryOptions{MaxRetries: 2, Base: time.Millisecond})

	_, err := r.Put(context.Background(), "certificates/x.pdf", []byte("x"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetrying_NotFoundIsNotRetried(t *testing.T) {
	flaky := &flakyBackend{Local: newTestLocal(t), failures: 5, err: ErrNotFound}
	r := WithRetry(flaky, RetryOptions{MaxRetries: 3, Base: time.Millisecond})

	_, err := r.Get(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetrying_DeterministicErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid reference", fmt.Errorf("reference %q is outside storage root: %w", "/etc/passwd", ErrInvalidReference)},
		{"permanent", fmt.Errorf("put object x: %w: %w", ErrPermanent, errors.New("AccessDenied"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyBackend{Local: newTestLocal(t), failures: 5, err: tt.err}
			retried := 0
			r := WithRetry(flaky, RetryOptions{
				MaxRetries: 3,
				Base:       time.Millisecond,
				OnRetry:    func(string, int, error) { retried++ },
			})

			_, err := r.Put(context.Background(), "certificates/x.pdf", []byte("x"), nil)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, flaky.calls)
			assert.Zero(t, retried)
		})
	}
}

func TestRetrying_LocalOutsideRootIsNotRetried(t *testing.T) {
	r := WithRetry(newTestLocal(t), RetryOptions{MaxRetries: 3, Base: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := r.Get(context.Background(), "/etc/passwd")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInvalidReference)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid reference was retried")
	}
}

func TestRetrying_AttemptTimeout(t *testing.T) {
	slow := &slowBackend{Local: newTestLocal(t)}
	r := WithRetry(slow, RetryOptions{MaxRetries: 1, Base: time.Millisecond, AttemptTimeout: 10 * time.Millisecond})

	_, err := r.Put(context.Background(), "certificates/x.pdf", []byte("x"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, slow.calls)
}

func TestRetrying_PassesThroughOtherMethods(t *testing.T) {
	l := newTestLocal(t)
	r := WithRetry(l, RetryOptions{})
	assert.Equal(t, "local", r.Name())
	assert.Equal(t, l.Reference("a"), r.Reference("a"))
}

// slowBackend blocks Put until the context ends.
type slowBackend struct {
	*Local
	calls int
}

func (s *slowBackend) Put(ctx context.Context, _ string, _ []byte, _ Metadata) (string, error) {
	s.calls++
	<-ctx.Done()
	return "", ctx.Err()
}
