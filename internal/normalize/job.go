package normalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/pulso/internal/store"
	"github.com/TobiSchelling/pulso/internal/window"
	"go.uber.org/zap"
)

// ErrNoActiveSources aborts a run before any write is attempted.
var ErrNoActiveSources = errors.New("no active sources found")

// SourceResult describes what happened to one source in a run.
type SourceResult struct {
	Code      string
	Rows      int
	MaxVolume float64
	Skipped   bool
}

// Result holds the results of an hourly normalization run.
type Result struct {
	Bucket  string
	DryRun  bool
	Sources []SourceResult
}

// Normalized counts the rows that were (or would have been) written.
func (r *Result) Normalized() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Rows
	}
	return n
}

// Skipped counts the sources without data for the bucket.
func (r *Result) Skipped() int {
	n := 0
	for _, s := range r.Sources {
		if s.Skipped {
			n++
		}
	}
	return n
}

// Normalizer rewrites volume_normalized for every active source in one bucket.
type Normalizer struct {
	store   store.Store
	logger  *zap.Logger
	timeout  time.Duration
	dryRun   bool
	progress func(SourceResult)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTimeout bounds every individual store call.
func WithTimeout(d time.Duration) Option {
	return func(n *Normalizer) { n.timeout = d }
}

// WithDryRun computes normalized values without persisting them.
func WithDryRun(dryRun bool) Option {
	return func(n *Normalizer) { n.dryRun = dryRun }
}

// WithProgress calls fn after each source is handled, before the next one starts.
func WithProgress(fn func(SourceResult)) Option {
	return func(n *Normalizer) { n.progress = fn }
}

// NewNormalizer creates a new hourly normalizer.
func NewNormalizer(s store.Store, logger *zap.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{store: s, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run normalizes every active source's rows for the given bucket start.
// Sources are processed sequentially; the first store error ends the run.
func (n *Normalizer) Run(ctx context.Context, bucketStart time.Time) (*Result, error) {
	bucket := window.FormatBucket(bucketStart)
	r := &Result{Bucket: bucket, DryRun: n.dryRun}
	log := n.logger.With(zap.String("bucket", bucket))

	var sources []store.Source
	err := n.call(ctx, func(ctx context.Context) (err error) {
		sources, err = n.store.ActiveSources(ctx)
		return err
	})
	if err != nil {
		return r, fmt.Errorf("loading active sources: %w", err)
	}
	if len(sources) == 0 {
		return r, ErrNoActiveSources
	}
	log.Debug("loaded active sources", zap.Int("count", len(sources)))

	for _, src := range sources {
		sr, err := n.runSource(ctx, log, src, bucket)
		if err != nil {
			return r, fmt.Errorf("source %s: %w", src.Code, err)
		}
		r.Sources = append(r.Sources, sr)
		if n.progress != nil {
			n.progress(sr)
		}
	}

	log.Info("normalization complete",
		zap.Int("sources", len(r.Sources)),
		zap.Int("skipped", r.Skipped()),
		zap.Int("rows", r.Normalized()),
		zap.Bool("dry_run", n.dryRun),
	)
	return r, nil
}

func (n *Normalizer) runSource(ctx context.Context, log *zap.Logger, src store.Source, bucket string) (SourceResult, error) {
	sr := SourceResult{Code: src.Code}
	log = log.With(zap.String("source", src.Code))

	var rows []store.Metric
	err := n.call(ctx, func(ctx context.Context) (err error) {
		rows, err = n.store.BucketMetrics(ctx, src.ID, bucket)
		return err
	})
	if err != nil {
		return sr, fmt.Errorf("loading metrics: %w", err)
	}
	if len(rows) == 0 {
		log.Info("no data for bucket")
		sr.Skipped = true
		return sr, nil
	}

	group, err := Normalize(rows)
	if err != nil {
		return sr, err
	}
	sr.Rows = len(rows)
	sr.MaxVolume = group.MaxVolume
	log.Info("normalized source", zap.Int("rows", sr.Rows), zap.Float64("max_volume", sr.MaxVolume))

	if n.dryRun {
		return sr, nil
	}
	err = n.call(ctx, func(ctx context.Context) error {
		return n.store.SetNormalized(ctx, group.Updates)
	})
	if err != nil {
		return sr, fmt.Errorf("writing normalized volumes: %w", err)
	}
	return sr, nil
}

func (n *Normalizer) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if n.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return fn(ctx)
}
