package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TobiSchelling/pulso/internal/aggregate"
	"github.com/TobiSchelling/pulso/internal/config"
	"github.com/TobiSchelling/pulso/internal/metrics"
	"github.com/TobiSchelling/pulso/internal/normalize"
	"github.com/TobiSchelling/pulso/internal/store"
	"github.com/TobiSchelling/pulso/internal/store/postgres"
	"github.com/TobiSchelling/pulso/internal/store/rest"
	"github.com/TobiSchelling/pulso/internal/store/retry"
	"github.com/TobiSchelling/pulso/internal/store/sqlite"
	"github.com/TobiSchelling/pulso/internal/window"
	"go.uber.org/zap"
)

type normalizeOptions struct {
	Bucket string
	DryRun bool
	Now    func() time.Time
}

// runNormalize resolves the bucket, runs the normalizer and prints progress.
func runNormalize(ctx context.Context, out io.Writer, cfg *config.Config, st store.Store, logger *zap.Logger, opts normalizeOptions) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	bucket := window.PreviousHour(now())
	if opts.Bucket != "" {
		b, err := window.ParseBucket(opts.Bucket)
		if err != nil {
			return err
		}
		bucket = b
	}

	fmt.Fprintf(out, "Normalizing bucket: %s\n", window.FormatBucket(bucket))
	if opts.DryRun {
		fmt.Fprintln(out, "[dry-run] no values will be written")
	}

	started := time.Now()
	n := normalize.NewNormalizer(st, logger,
		normalize.WithTimeout(cfg.Store.Timeout),
		normalize.WithDryRun(opts.DryRun),
		normalize.WithProgress(func(s normalize.SourceResult) {
			if s.Skipped {
				fmt.Fprintf(out, "Source %s: no data for bucket\n", s.Code)
				return
			}
			fmt.Fprintf(out, "Source %s: %d rows, max_volume=%g\n", s.Code, s.Rows, s.MaxVolume)
		}),
	)
	result, err := n.Run(ctx, bucket)

	rec := metrics.New(cfg.Metrics.Job, "normalize")
	rec.ObserveNormalize(result)
	rec.ObserveRun(started, err)
	flushMetrics(ctx, cfg, rec, logger)

	if err != nil {
		if errors.Is(err, normalize.ErrNoActiveSources) {
			return fmt.Errorf("%w: check the sources table", err)
		}
		return err
	}

	fmt.Fprintln(out, "Normalization complete")
	return nil
}

// runAggregate triggers the daily aggregation for day (default: today, UTC).
func runAggregate(ctx context.Context, out io.Writer, cfg *config.Config, st store.Store, logger *zap.Logger, day string) error {
	d := window.Today(time.Now())
	if day != "" {
		parsed, err := window.ParseDay(day)
		if err != nil {
			return err
		}
		d = parsed
	}

	fmt.Fprintf(out, "Running daily aggregation for %s\n", window.FormatDay(d))

	started := time.Now()
	agg := aggregate.NewAggregator(st, logger, cfg.Jobs.Procedure, cfg.Store.Timeout)
	err := agg.Run(ctx, d)

	rec := metrics.New(cfg.Metrics.Job, "aggregate")
	rec.ObserveRun(started, err)
	flushMetrics(ctx, cfg, rec, logger)

	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Daily aggregation complete")
	return nil
}

// flushMetrics never fails the run; metric delivery is best effort.
func flushMetrics(ctx context.Context, cfg *config.Config, rec *metrics.Recorder, logger *zap.Logger) {
	if err := rec.Flush(ctx, cfg.Metrics.Textfile, cfg.Metrics.PushgatewayURL); err != nil {
		logger.Warn("metrics not delivered", zap.Error(err))
	}
}

// openStore builds the configured backend, wrapped with the retry policy.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendREST:
		st, err = rest.New(cfg.GetSupabaseURL(), cfg.GetAPIKey(), cfg.Store.Timeout)
	case config.BackendPostgres:
		st, err = postgres.Open(cfg.GetPostgresDSN())
	case config.BackendSQLite:
		var db *sqlite.DB
		if db, err = sqlite.Open(cfg.GetSQLitePath()); err == nil {
			logger.Info("sqlite database opened", zap.String("path", db.Path()))
			st = db
		}
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	logger.Debug("store opened", zap.String("backend", cfg.Store.Backend))
	return retry.Wrap(st, retry.Policy{
		Attempts: cfg.Store.Retry.Attempts,
		Min:      cfg.Store.Retry.Min,
		Max:      cfg.Store.Retry.Max,
	}, logger), nil
}
