package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/pulso/internal/store"
	"github.com/TobiSchelling/pulso/internal/window"
	"go.uber.org/zap"
)

// DefaultProcedure is the server-side daily aggregation routine.
const DefaultProcedure = "aggregate_daily_metrics"

// Aggregator triggers the daily aggregation procedure for one calendar day.
type Aggregator struct {
	store     store.Store
	logger    *zap.Logger
	procedure string
	timeout   time.Duration
}

// NewAggregator creates a daily aggregation trigger. An empty procedure
// name falls back to DefaultProcedure.
func NewAggregator(s store.Store, logger *zap.Logger, procedure string, timeout time.Duration) *Aggregator {
	if procedure == "" {
		procedure = DefaultProcedure
	}
	return &Aggregator{store: s, logger: logger, procedure: procedure, timeout: timeout}
}

// Run calls the procedure with p_day set to the UTC date of day.
func (a *Aggregator) Run(ctx context.Context, day time.Time) error {
	pDay := window.FormatDay(day)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	a.logger.Debug("calling procedure", zap.String("procedure", a.procedure), zap.String("p_day", pDay))
	if err := a.store.CallProcedure(ctx, a.procedure, map[string]any{"p_day": pDay}); err != nil {
		return fmt.Errorf("calling %s(%s): %w", a.procedure, pDay, err)
	}
	a.logger.Info("daily aggregation complete", zap.String("p_day", pDay))
	return nil
}
