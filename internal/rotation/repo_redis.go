package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldVoice = "voice"
	fieldFrom  = "from"
)

// RedisStore keeps one hash per account: rotation:{account_id} -> {voice, from}.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores state under prefix. ttl <= 0 keeps keys forever.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rotation:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(accountID string) string { return s.prefix + accountID }

func (s *RedisStore) Get(ctx context.Context, accountID string) (State, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(accountID), fieldVoice, fieldFrom).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("rotation: redis get: %w", err)
	}
	var st State
	found := false
	if v, ok := vals[0].(string); ok {
		st.LastVoice = v
		found = true
	}
	if v, ok := vals[1].(string); ok {
		st.LastFromNumber = v
		found = true
	}
	return st, found, nil
}

func (s *RedisStore) Put(ctx context.Context, accountID string, st State) error {
	k := s.key(accountID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, fieldVoice, st.LastVoice, fieldFrom, st.LastFromNumber)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotation: redis put: %w", err)
	}
	return nil
}
