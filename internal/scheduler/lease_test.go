package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsm/redislock"
)

func TestKeepAlive_RefreshesUntilStopped(t *testing.T) {
	var n atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated refreshes, got %d", n.Load())
		}
		time.Sleep(time.Millisecond)
	}
	stop()

	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	if got := n.Load(); got != after {
		t.Fatalf("refresh ran after stop: %d -> %d", after, got)
	}
}

func TestKeepAlive_GivesUpWhenLockIsLost(t *testing.T) {
	var n atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return redislock.ErrNotObtained
	})
	defer stop()

	time.Sleep(50 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Fatalf("expected a single refresh attempt, got %d", got)
	}
}
