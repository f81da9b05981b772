// README: Create idempotency keys remembered in Redis.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quickauto/internal/types"
)

// IdempotencyStore maps a rider's Idempotency-Key to the ride it created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, riderUID types.ID, key string) (Ref, bool, error)
	Remember(ctx context.Context, riderUID types.ID, key string, ref Ref) error
}

const idempotencyTTL = 24 * time.Hour

type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotency(rdb *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb, ttl: idempotencyTTL}
}

func idempotencyKey(riderUID types.ID, key string) string {
	return "quickauto:idem:" + string(riderUID) + ":" + key
}

func (s *RedisIdempotency) Lookup(ctx context.Context, riderUID types.ID, key string) (Ref, bool, error) {
	raw, err := s.rdb.Get(ctx, idempotencyKey(riderUID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ref{}, false, nil
	}
	if err != nil {
		return Ref{}, false, err
	}
	var ref Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return Ref{}, false, err
	}
	return ref, true, nil
}

// Remember keeps the first ride recorded for a key; later writes are ignored.
func (s *RedisIdempotency) Remember(ctx context.Context, riderUID types.ID, key string, ref Ref) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return s.rdb.SetNX(ctx, idempotencyKey(riderUID, key), payload, s.ttl).Err()
}
