package store

import "context"

// Table and column names shared by every backend.
const (
	SourcesTable = "sources"
	MetricsTable = "time_bucket_metrics"
)

// Source is a tracked data origin.
type Source struct {
	ID   string `json:"id" gorm:"column:id"`
	Code string `json:"code" gorm:"column:code"`
}

// Metric is one raw observation of a source within a bucket.
type Metric struct {
	ID        string  `json:"id" gorm:"column:id"`
	VolumeRaw float64 `json:"volume_raw" gorm:"column:volume_raw"`
}

// Update sets the normalized volume of a single metric row.
type Update struct {
	ID               string
	VolumeNormalized float64
}

// Store is the capability the jobs need from the backing database.
type Store interface {
	// ActiveSources returns every source with active = true.
	ActiveSources(ctx context.Context) ([]Source, error)
	// BucketMetrics returns the rows of one source for an exact bucket_start value.
	BucketMetrics(ctx context.Context, sourceID, bucket string) ([]Metric, error)
	// SetNormalized writes volume_normalized for each row by id.
	SetNormalized(ctx context.Context, updates []Update) error
	// CallProcedure invokes a named server-side procedure.
	CallProcedure(ctx context.Context, name string, params map[string]any) error
	Close() error
}
