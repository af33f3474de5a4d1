package normalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/pulso/internal/store"
	"go.uber.org/zap"
)

// fakeStore implements store.Store in memory for testing.
type fakeStore struct {
	sources  []store.Source
	metrics  map[string][]store.Metric // keyed by sourceID + "|" + bucket
	written  map[string]float64
	calls    []string
	failOn   string
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{metrics: map[string][]store.Metric{}, written: map[string]float64{}}
}

func (f *fakeStore) ActiveSources(_ context.Context) ([]store.Source, error) {
	return f.sources, nil
}

func (f *fakeStore) BucketMetrics(_ context.Context, sourceID, bucket string) ([]store.Metric, error) {
	f.calls = append(f.calls, sourceID+"|"+bucket)
	return f.metrics[sourceID+"|"+bucket], nil
}

func (f *fakeStore) SetNormalized(_ context.Context, updates []store.Update) error {
	for _, u := range updates {
		if u.ID == f.failOn {
			return f.writeErr
		}
	}
	for _, u := range updates {
		f.written[u.ID] = u.VolumeNormalized
	}
	return nil
}

func (f *fakeStore) CallProcedure(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

func (f *fakeStore) Close() error { return nil }

var testBucket = time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)

func TestRunNormalizesEachSource(t *testing.T) {
	fs := newFakeStore()
	fs.sources = []store.Source{{ID: "s1", Code: "X"}, {ID: "s2", Code: "IG"}, {ID: "s3", Code: "YT"}}
	fs.metrics["s1|2024-02-29 23:00:00"] = []store.Metric{{ID: "m1", VolumeRaw: 10}, {ID: "m2", VolumeRaw: 40}, {ID: "m3", VolumeRaw: 20}}
	fs.metrics["s2|2024-02-29 23:00:00"] = []store.Metric{{ID: "m4", VolumeRaw: 0}}

	n := NewNormalizer(fs, zap.NewNop(), WithTimeout(time.Second))
	result, err := n.Run(context.Background(), testBucket)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Bucket != "2024-02-29 23:00:00" {
		t.Errorf("expected naive bucket string, got %q", result.Bucket)
	}
	if len(result.Sources) != 3 {
		t.Fatalf("expected 3 source results, got %d", len(result.Sources))
	}
	if result.Normalized() != 4 {
		t.Errorf("expected 4 rows normalized, got %d", result.Normalized())
	}
	if result.Skipped() != 1 || !result.Sources[2].Skipped {
		t.Error("expected source YT to be skipped")
	}
	if result.Sources[0].MaxVolume != 40 {
		t.Errorf("expected max 40, got %v", result.Sources[0].MaxVolume)
	}

	want := map[string]float64{"m1": 25, "m2": 100, "m3": 50, "m4": 0}
	for id, v := range want {
		got, ok := fs.written[id]
		if !ok {
			t.Errorf("row %s not written", id)
			continue
		}
		if got != v {
			t.Errorf("row %s: expected %v, got %v", id, v, got)
		}
	}
}

func TestRunNoActiveSources(t *testing.T) {
	fs := newFakeStore()

	n := NewNormalizer(fs, zap.NewNop())
	_, err := n.Run(context.Background(), testBucket)
	if !errors.Is(err, ErrNoActiveSources) {
		t.Fatalf("expected ErrNoActiveSources, got %v", err)
	}
	if len(fs.calls) != 0 || len(fs.written) != 0 {
		t.Error("expected no metric reads or writes")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	fs := newFakeStore()
	fs.sources = []store.Source{{ID: "s1", Code: "X"}}
	fs.metrics["s1|2024-02-29 23:00:00"] = []store.Metric{{ID: "m1", VolumeRaw: 5}}

	n := NewNormalizer(fs, zap.NewNop(), WithDryRun(true))
	result, err := n.Run(context.Background(), testBucket)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.DryRun || result.Normalized() != 1 {
		t.Errorf("expected dry-run result with 1 row, got %+v", result)
	}
	if len(fs.written) != 0 {
		t.Errorf("expected no writes, got %d", len(fs.written))
	}
}

func TestRunStopsOnWriteError(t *testing.T) {
	fs := newFakeStore()
	fs.sources = []store.Source{{ID: "s1", Code: "X"}, {ID: "s2", Code: "IG"}}
	fs.metrics["s1|2024-02-29 23:00:00"] = []store.Metric{{ID: "m1", VolumeRaw: 5}}
	fs.metrics["s2|2024-02-29 23:00:00"] = []store.Metric{{ID: "m2", VolumeRaw: 9}}
	fs.failOn = "m2"
	fs.writeErr = errors.New("connection reset")

	n := NewNormalizer(fs, zap.NewNop())
	result, err := n.Run(context.Background(), testBucket)
	if !errors.Is(err, fs.writeErr) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if len(result.Sources) != 1 {
		t.Errorf("expected partial result for the first source, got %d", len(result.Sources))
	}
	if _, ok := fs.written["m1"]; !ok {
		t.Error("expected earlier source to stay written")
	}
}

func TestRunIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.sources = []store.Source{{ID: "s1", Code: "X"}}
	fs.metrics["s1|2024-02-29 23:00:00"] = []store.Metric{{ID: "m1", VolumeRaw: 1}, {ID: "m2", VolumeRaw: 3}}

	n := NewNormalizer(fs, zap.NewNop())
	if _, err := n.Run(context.Background(), testBucket); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := map[string]float64{}
	for k, v := range fs.written {
		first[k] = v
	}
	if _, err := n.Run(context.Background(), testBucket); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for k, v := range first {
		if fs.written[k] != v {
			t.Errorf("row %s changed between runs: %v -> %v", k, v, fs.written[k])
		}
	}
}

func TestRunReportsProgressPerSource(t *testing.T) {
	fs := newFakeStore()
	fs.sources = []store.Source{{ID: "s1", Code: "X"}, {ID: "s2", Code: "IG"}}
	fs.metrics["s1|2024-02-29 23:00:00"] = []store.Metric{{ID: "m1", VolumeRaw: 5}}

	var seen []string
	var readsAtReport []int
	n := NewNormalizer(fs, zap.NewNop(), WithProgress(func(sr SourceResult) {
		seen = append(seen, sr.Code)
		readsAtReport = append(readsAtReport, len(fs.calls))
	}))
	if _, err := n.Run(context.Background(), testBucket); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 2 || seen[0] != "X" || seen[1] != "IG" {
		t.Fatalf("expected progress for X then IG, got %v", seen)
	}
	if readsAtReport[0] != 1 {
		t.Errorf("expected X reported before IG was read, got %d reads", readsAtReport[0])
	}
}

// blockingStore never answers a metrics read until the caller gives up.
type blockingStore struct {
	fakeStore
}

func (b *blockingStore) BucketMetrics(ctx context.Context, _, _ string) ([]store.Metric, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunTimesOutStoreCalls(t *testing.T) {
	bs := &blockingStore{}
	bs.sources = []store.Source{{ID: "s1", Code: "X"}}

	n := NewNormalizer(bs, zap.NewNop(), WithTimeout(50*time.Millisecond))
	started := time.Now()
	_, err := n.Run(context.Background(), testBucket)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("expected run to stop near the timeout, took %v", elapsed)
	}
}
