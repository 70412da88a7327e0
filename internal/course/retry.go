package course

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingRepository retries a Repository with bounded exponential backoff.
type RetryingRepository struct {
	inner      Repository
	attempts   uint64
	newBackOff func() backoff.BackOff
}

// RetryOption configures a RetryingRepository.
type RetryOption func(*RetryingRepository)

// WithRetryBackOff replaces the delay policy between attempts.
func WithRetryBackOff(fn func() backoff.BackOff) RetryOption {
	return func(r *RetryingRepository) {
		r.newBackOff = fn
	}
}

// NewRetryingRepository makes up to attempts calls to inner per operation.
func NewRetryingRepository(inner Repository, attempts int, opts ...RetryOption) *RetryingRepository {
	if attempts < 1 {
		attempts = 1
	}
	r := &RetryingRepository{
		inner:    inner,
		attempts: uint64(attempts),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryingRepository) LoadAll(ctx context.Context) (map[string]Record, error) {
	var out map[string]Record
	err := r.retry(ctx, "load_all", func() error {
		var err error
		out, err = r.inner.LoadAll(ctx)
		return err
	})
	return out, err
}

func (r *RetryingRepository) Upsert(ctx context.Context, rec Record) error {
	return r.retry(ctx, "upsert", func() error {
		return r.inner.Upsert(ctx, rec)
	})
}

func (r *RetryingRepository) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.attempts-1), ctx)
	return backoff.RetryNotify(fn, b, func(err error, wait time.Duration) {
		slog.Warn("course repository call failed, retrying", "op", op, "wait", wait, "error", err)
	})
}
