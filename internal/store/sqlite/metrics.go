package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/pulso/internal/store"
)

// ActiveSources returns all sources flagged active.
func (db *DB) ActiveSources(ctx context.Context) ([]store.Source, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, code FROM sources WHERE active = 1 ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []store.Source
	for rows.Next() {
		var s store.Source
		if err := rows.Scan(&s.ID, &s.Code); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// BucketMetrics returns the rows of one source for an exact bucket_start.
func (db *DB) BucketMetrics(ctx context.Context, sourceID, bucket string) ([]store.Metric, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, volume_raw FROM time_bucket_metrics WHERE source_id = ? AND bucket_start = ? ORDER BY id",
		sourceID, bucket,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []store.Metric
	for rows.Next() {
		var m store.Metric
		if err := rows.Scan(&m.ID, &m.VolumeRaw); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// SetNormalized writes a group of normalized volumes in a single transaction.
func (db *DB) SetNormalized(ctx context.Context, updates []store.Update) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "UPDATE time_bucket_metrics SET volume_normalized = ? WHERE id = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.VolumeNormalized, u.ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("updating %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// InsertSource creates a source row.
func (db *DB) InsertSource(id, code string, active bool) error {
	_, err := db.conn.Exec("INSERT INTO sources (id, code, active) VALUES (?, ?, ?)", id, code, active)
	return err
}

// SetSourceActive flips a source's active flag.
func (db *DB) SetSourceActive(id string, active bool) error {
	_, err := db.conn.Exec("UPDATE sources SET active = ? WHERE id = ?", active, id)
	return err
}

// InsertMetric creates a raw metric row with no normalized value.
func (db *DB) InsertMetric(id, sourceID, bucket string, volumeRaw float64) error {
	_, err := db.conn.Exec(
		"INSERT INTO time_bucket_metrics (id, source_id, bucket_start, volume_raw) VALUES (?, ?, ?, ?)",
		id, sourceID, bucket, volumeRaw,
	)
	return err
}

// GetNormalized returns a row's normalized volume; nil while unset.
func (db *DB) GetNormalized(id string) (*float64, error) {
	var v sql.NullFloat64
	err := db.conn.QueryRow("SELECT volume_normalized FROM time_bucket_metrics WHERE id = ?", id).Scan(&v)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Float64, nil
}
