package switchlock

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireFailsWhileHeld(t *testing.T) {
	r := NewRegistry()
	release, ok := r.TryAcquire("10.0.0.1")
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	defer release()

	if _, ok := r.TryAcquire("10.0.0.1"); ok {
		t.Fatal("second TryAcquire should fail while held")
	}

	if _, ok := r.TryAcquire("10.0.0.2"); !ok {
		t.Fatal("a different IP should not be blocked")
	}
}

func TestAcquireBlocksThenSucceedsOnRelease(t *testing.T) {
	r := NewRegistry()
	release, _ := r.TryAcquire("10.0.0.1")

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rel, err := r.Acquire(ctx, "10.0.0.1")
		if err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		rel()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	r := NewRegistry()
	release, _ := r.TryAcquire("10.0.0.1")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.Acquire(ctx, "10.0.0.1"); err == nil {
		t.Fatal("expected Acquire to fail once context expires")
	}
}
