// Package retry wraps a store.Store with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/TobiSchelling/pulso/internal/store"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// Policy bounds how a failing call is repeated.
type Policy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

// Store repeats failed calls on the wrapped store.
// Every operation is idempotent, so repeating a write is safe.
type Store struct {
	next   store.Store
	policy Policy
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Wrap returns s unchanged when the policy allows a single attempt.
func Wrap(s store.Store, p Policy, logger *zap.Logger) store.Store {
	if p.Attempts <= 1 {
		return s
	}
	return &Store{next: s, policy: p, logger: logger}
}

// ActiveSources lists active sources, retrying transient failures.
func (s *Store) ActiveSources(ctx context.Context) (out []store.Source, err error) {
	err = s.do(ctx, "active_sources", func() error {
		out, err = s.next.ActiveSources(ctx)
		return err
	})
	return out, err
}

// BucketMetrics reads one source bucket, retrying transient failures.
func (s *Store) BucketMetrics(ctx context.Context, sourceID, bucket string) (out []store.Metric, err error) {
	err = s.do(ctx, "bucket_metrics", func() error {
		out, err = s.next.BucketMetrics(ctx, sourceID, bucket)
		return err
	})
	return out, err
}

// SetNormalized reapplies the whole group on retry.
func (s *Store) SetNormalized(ctx context.Context, updates []store.Update) error {
	return s.do(ctx, "set_normalized", func() error {
		return s.next.SetNormalized(ctx, updates)
	})
}

// CallProcedure retries the procedure call. Callers must pass only idempotent procedures.
func (s *Store) CallProcedure(ctx context.Context, name string, params map[string]any) error {
	return s.do(ctx, "call_procedure", func() error {
		return s.next.CallProcedure(ctx, name, params)
	})
}

// Close closes the wrapped store without retrying.
func (s *Store) Close() error {
	return s.next.Close()
}

func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{Min: s.policy.Min, Max: s.policy.Max, Factor: 2}
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= s.policy.Attempts || !retryable(err) {
			return err
		}

		wait := b.Duration()
		s.logger.Warn("store call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return err
		}
	}
}

type temporary interface {
	Temporary() bool
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
