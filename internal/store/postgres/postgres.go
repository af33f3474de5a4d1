// Package postgres connects straight to the Supabase Postgres database.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/TobiSchelling/pulso/internal/store"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is a store.Store over a gorm Postgres connection.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database described by dsn.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is not configured")
	}
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ActiveSources returns all sources with active = true.
func (s *Store) ActiveSources(ctx context.Context) ([]store.Source, error) {
	var sources []store.Source
	err := s.db.WithContext(ctx).
		Table(store.SourcesTable).
		Select("id", "code").
		Where("active = ?", true).
		Find(&sources).Error
	return sources, err
}

// BucketMetrics returns the rows of one source for an exact bucket_start.
// The bucket is compared as text against the timestamp-without-timezone column.
func (s *Store) BucketMetrics(ctx context.Context, sourceID, bucket string) ([]store.Metric, error) {
	var metrics []store.Metric
	err := s.db.WithContext(ctx).
		Table(store.MetricsTable).
		Select("id", "volume_raw").
		Where("source_id = ? AND bucket_start = ?::timestamp", sourceID, bucket).
		Find(&metrics).Error
	return metrics, err
}

// SetNormalized applies a group of updates atomically.
func (s *Store) SetNormalized(ctx context.Context, updates []store.Update) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Table(store.MetricsTable).
				Where("id = ?", u.ID).
				Update("volume_normalized", u.VolumeNormalized).Error
			if err != nil {
				return fmt.Errorf("updating %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// CallProcedure runs SELECT name(param => value, ...).
func (s *Store) CallProcedure(ctx context.Context, name string, params map[string]any) error {
	query, err := procedureSQL(name, params)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return s.db.WithContext(ctx).Exec(query).Error
	}
	return s.db.WithContext(ctx).Exec(query, params).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// procedureSQL builds a call with gorm named arguments, e.g.
// SELECT aggregate_daily_metrics(p_day => @p_day).
func procedureSQL(name string, params map[string]any) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("invalid procedure name %q", name)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if !identifier.MatchString(k) {
			return "", fmt.Errorf("invalid parameter name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, len(keys))
	for i, k := range keys {
		args[i] = k + " => @" + k
	}
	return fmt.Sprintf("SELECT %s(%s)", name, strings.Join(args, ", ")), nil
}
