package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_CallsProcessUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRunner("test", func(ctx context.Context) error {
		if calls.Add(1) == 3 {
			cancel()
		}
		return errors.New("keeps going")
	}, time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	if got := calls.Load(); got < 3 {
		t.Errorf("expected at least 3 calls, got %d", got)
	}
}

func TestRun_StopsImmediatelyOnDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	r := NewRunner("test", func(ctx context.Context) error {
		called = true
		return nil
	}, time.Hour)
	r.Run(ctx)

	if called {
		t.Error("expected process not to be called")
	}
}
