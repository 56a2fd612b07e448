package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld means another process is ticking.
var ErrLeaseHeld = errors.New("scheduler: tick lease held elsewhere")

// TickLease keeps two engine processes from ticking at the same time.
type TickLease interface {
	// Acquire returns a release func, or ErrLeaseHeld.
	Acquire(ctx context.Context) (func(), error)
}

// RedisLease is a TickLease backed by a redislock key. The TTL should cover
// a tick period plus the provider timeout; the key is refreshed while held.
type RedisLease struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

func NewRedisLease(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = "lock:scheduler:tick"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLease{locker: redislock.New(rdb), key: key, ttl: ttl}
}

// Acquire obtains the lock and keeps extending it every third of its TTL
// until the returned func releases it.
func (l *RedisLease) Acquire(ctx context.Context) (func(), error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLeaseHeld
	}
	if err != nil {
		return nil, err
	}
	stop := keepAlive(l.ttl/3, func(ctx context.Context) error {
		return lock.Refresh(ctx, l.ttl, nil)
	})
	return func() {
		stop()
		_ = lock.Release(context.Background())
	}, nil
}

// keepAlive calls refresh every interval until stop is called or refresh
// reports the lock is gone. stop waits for the loop to exit.
func keepAlive(every time.Duration, refresh func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := refresh(ctx); errors.Is(err, redislock.ErrNotObtained) {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
