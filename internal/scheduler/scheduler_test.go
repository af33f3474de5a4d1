package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAddRejectsInvalidExpression(t *testing.T) {
	s := New(zap.NewNop())
	err := s.Add(context.Background(), "normalize", "every hour", func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestNextActivationIsUTC(t *testing.T) {
	s := New(zap.NewNop())
	if err := s.Add(context.Background(), "normalize", "5 * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add(context.Background(), "aggregate", "15 0 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2024, 2, 29, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	next := s.Next(now)
	if len(next) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(next))
	}
	if next[0].Task != "normalize" || next[1].Task != "aggregate" {
		t.Errorf("expected registration order, got %q, %q", next[0].Task, next[1].Task)
	}
	if want := time.Date(2024, 2, 29, 23, 5, 0, 0, time.UTC); !next[0].At.Equal(want) || next[0].At.Location() != time.UTC {
		t.Errorf("expected hourly activation %v, got %v", want, next[0].At)
	}
	if want := time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC); !next[1].At.Equal(want) {
		t.Errorf("expected daily activation %v, got %v", want, next[1].At)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
