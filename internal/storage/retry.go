package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryOptions bounds the retry decorator.
type RetryOptions struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Base is the first backoff interval; later intervals double.
	Base time.Duration
	// AttemptTimeout bounds each individual attempt. Zero disables it.
	AttemptTimeout time.Duration
	// OnRetry is called before each retry with the failed attempt number.
	OnRetry func(op string, attempt int, err error)
}

// Retrying decorates a Backend with per-attempt timeouts and exponential
// backoff on Put, Get, Exists and Stat. ErrNotFound, ErrInvalidReference
// and ErrPermanent are never retried.
type Retrying struct {
	Backend
	opts RetryOptions
}

// WithRetry wraps b. A zero Base defaults to 100ms.
func WithRetry(b Backend, opts RetryOptions) *Retrying {
	if opts.Base <= 0 {
		opts.Base = 100 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Retrying{Backend: b, opts: opts}
}

func (r *Retrying) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	var ref string
	err := r.do(ctx, "put", func(ctx context.Context) error {
		var err error
		ref, err = r.Backend.Put(ctx, key, data, meta)
		return err
	})
	return ref, err
}

func (r *Retrying) Get(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "get", func(ctx context.Context) error {
		var err error
		data, err = r.Backend.Get(ctx, ref)
		return err
	})
	return data, err
}

func (r *Retrying) Exists(ctx context.Context, ref string) (bool, error) {
	var ok bool
	err := r.do(ctx, "exists", func(ctx context.Context) error {
		var err error
		ok, err = r.Backend.Exists(ctx, ref)
		return err
	})
	return ok, err
}

func (r *Retrying) Stat(ctx context.Context, ref string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := r.do(ctx, "stat", func(ctx context.Context) error {
		var err error
		info, err = r.Backend.Stat(ctx, ref)
		return err
	})
	return info, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(r.opts.MaxRetries), retry.NewExponential(r.opts.Base))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt <= r.opts.MaxRetries && r.opts.OnRetry != nil {
			r.opts.OnRetry(op, attempt, err)
		}
		return retry.RetryableError(err)
	})
}

func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidReference) &&
		!errors.Is(err, ErrPermanent)
}

func (r *Retrying) attempt(ctx context.Context, fn func(context.Context) error) error {
	if r.opts.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
	defer cancel()
	return fn(ctx)
}
