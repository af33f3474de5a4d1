package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/pulso/internal/window"
)

type procedure func(ctx context.Context, tx *sql.Tx, params map[string]any) error

var procedures = map[string]procedure{
	"aggregate_daily_metrics": aggregateDailyMetrics,
}

// DailyMetric is one aggregated (source, day) row.
type DailyMetric struct {
	SourceID            string
	Day                 string
	VolumeRaw           float64
	VolumeNormalizedAvg *float64
	BucketCount         int
}

// aggregateDailyMetrics rolls the hourly rows of p_day up into daily_metrics.
// Rerunning a day replaces its rows.
func aggregateDailyMetrics(ctx context.Context, tx *sql.Tx, params map[string]any) error {
	raw, ok := params["p_day"].(string)
	if !ok {
		return fmt.Errorf("missing p_day parameter")
	}
	day, err := window.ParseDay(raw)
	if err != nil {
		return err
	}
	pDay := window.FormatDay(day)

	if _, err := tx.ExecContext(ctx, "DELETE FROM daily_metrics WHERE day = ?", pDay); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO daily_metrics (source_id, day, volume_raw, volume_normalized_avg, bucket_count)
SELECT source_id, ?, SUM(volume_raw), AVG(volume_normalized), COUNT(*)
FROM time_bucket_metrics
WHERE date(bucket_start) = ?
GROUP BY source_id`,
		pDay, pDay,
	)
	return err
}

// GetDailyMetrics returns the aggregated rows for one day.
func (db *DB) GetDailyMetrics(day string) ([]DailyMetric, error) {
	rows, err := db.conn.Query(
		"SELECT source_id, day, volume_raw, volume_normalized_avg, bucket_count FROM daily_metrics WHERE day = ? ORDER BY source_id",
		day,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMetric
	for rows.Next() {
		var d DailyMetric
		var avg sql.NullFloat64
		if err := rows.Scan(&d.SourceID, &d.Day, &d.VolumeRaw, &avg, &d.BucketCount); err != nil {
			return nil, err
		}
		if avg.Valid {
			v := avg.Float64
			d.VolumeNormalizedAvg = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
