package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntervalPacer_SpacesCalls(t *testing.T) {
	p := NewIntervalPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// First call is free, the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("three calls took %v, want >= ~60ms", elapsed)
	}
}

func TestIntervalPacer_CancelledContext(t *testing.T) {
	p := NewIntervalPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait should pass: %v", err)
	}
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("expected error after cancel")
	}
}

func TestNewIntervalPacer_ZeroIsNoop(t *testing.T) {
	if _, ok := NewIntervalPacer(0).(NoopPacer); !ok {
		t.Fatal("zero interval should yield NoopPacer")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (NoopPacer{}).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NoopPacer.Wait = %v, want context.Canceled", err)
	}
}
