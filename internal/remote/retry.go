package remote

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

// Retrying wraps a Store and retries calls that fail with ErrUnavailable
// using exponential backoff. Rejections and conflicts pass through
// unchanged. The reconciler does not use it — its retry unit is the next
// drain — but read paths such as a user-initiated refresh may.
type Retrying struct {
	Store          Store
	MaxAttempts    int
	InitialBackoff time.Duration
}

// WithRetry wraps store with the default retry policy.
func WithRetry(store Store) *Retrying {
	return &Retrying{Store: store}
}

func (r *Retrying) Upsert(ctx context.Context, link NewLink) (UpsertOutcome, error) {
	var out UpsertOutcome
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.Store.Upsert(ctx, link)
		return err
	})
	return out, err
}

func (r *Retrying) UpdateStatus(ctx context.Context, target string, status Status) (UpdateOutcome, error) {
	var out UpdateOutcome
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.Store.UpdateStatus(ctx, target, status)
		return err
	})
	return out, err
}

func (r *Retrying) Query(ctx context.Context, q Query) ([]Link, error) {
	var rows []Link
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		rows, err = r.Store.Query(ctx, q)
		return err
	})
	return rows, err
}

func (r *Retrying) retry(ctx context.Context, call func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := r.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}

	var lastErr error
	for attempt := range attempts {
		err := call(ctx)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		lastErr = err
		if attempt < attempts-1 {
			wait := time.Duration(float64(backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
