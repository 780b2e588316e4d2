package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueOrdering(t *testing.T) {
	q := newQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan int, 10)
	done := make(chan error, 1)
	go func() {
		done <- q.run(ctx, func(v int) { got <- v })
	}()

	for i := range 10 {
		if err := q.post(i); err != nil {
			t.Fatalf("post(%d) error = %v", i, err)
		}
	}
	for want := range 10 {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("handled %d, want %d", v, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d", want)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run() error = %v, want context.Canceled", err)
	}
	if err := q.post(1); !errors.Is(err, ErrStopped) {
		t.Errorf("post() after stop error = %v, want ErrStopped", err)
	}
}

func TestQueueRunsOnce(t *testing.T) {
	q := newQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.run(ctx, func(int) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("run() error = %v, want context.Canceled", err)
	}
	if err := q.run(context.Background(), func(int) {}); !errors.Is(err, ErrRunning) {
		t.Errorf("second run() error = %v, want ErrRunning", err)
	}
}

func TestQueuePostBeforeRun(t *testing.T) {
	q := newQueue[string]()
	if err := q.post("early"); err != nil {
		t.Fatalf("post() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 1)
	go func() { _ = q.run(ctx, func(v string) { got <- v }) }()

	select {
	case v := <-got:
		if v != "early" {
			t.Errorf("handled %q, want early", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event posted before run was lost")
	}
}
