package utils

import (
	"context"
	"testing"
	"time"
)

func TestSlotScriptsCompile(t *testing.T) {
	if slotAcquireScript == nil || slotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireSlot_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireSlot(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseSlot(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if got.PoolSize != 10 || got.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
