package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/pulso/internal/normalize"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveNormalize(t *testing.T) {
	r := New("pulso", "normalize")
	r.ObserveNormalize(&normalize.Result{
		Sources: []normalize.SourceResult{
			{Code: "X", Rows: 3},
			{Code: "IG", Rows: 2},
			{Code: "YT", Skipped: true},
		},
	})

	if got := testutil.ToFloat64(r.rows); got != 5 {
		t.Errorf("expected 5 rows, got %v", got)
	}
	if got := testutil.ToFloat64(r.sources.WithLabelValues("skipped")); got != 1 {
		t.Errorf("expected 1 skipped, got %v", got)
	}
	if got := testutil.ToFloat64(r.sources.WithLabelValues("normalized")); got != 2 {
		t.Errorf("expected 2 normalized, got %v", got)
	}
}

func TestObserveRun(t *testing.T) {
	r := New("pulso", "aggregate")
	r.ObserveRun(time.Now().Add(-2*time.Second), nil)
	if testutil.ToFloat64(r.lastSuccess) == 0 {
		t.Error("expected last success timestamp")
	}
	if testutil.ToFloat64(r.duration) < 2 {
		t.Errorf("expected duration >= 2s, got %v", testutil.ToFloat64(r.duration))
	}

	r.ObserveRun(time.Now(), errors.New("boom"))
	if testutil.ToFloat64(r.lastFailure) == 0 {
		t.Error("expected last failure timestamp")
	}
}

func TestFlushTextfile(t *testing.T) {
	r := New("pulso", "normalize")
	r.ObserveRun(time.Now(), nil)

	path := filepath.Join(t.TempDir(), "pulso.prom")
	if err := r.Flush(context.Background(), path, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), "pulso_last_success_timestamp_seconds") {
		t.Errorf("expected success gauge in textfile, got:\n%s", data)
	}
}

func TestFlushPush(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New("pulso", "normalize")
	if err := r.Flush(context.Background(), "", srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/metrics/job/pulso/task/normalize" {
		t.Errorf("unexpected push path %q", gotPath)
	}
}
