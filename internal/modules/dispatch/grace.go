// README: Rejection grace window stores (Redis keys with TTL, or in-process map).
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

// GraceStore remembers, for a short window, which rides a driver has just rejected.
// Within returns the window's end for every ref still inside it.
type GraceStore interface {
	Mark(ctx context.Context, driverID types.ID, ref ride.Ref, window time.Duration) error
	Within(ctx context.Context, driverID types.ID, refs []ride.Ref) (map[ride.Ref]time.Time, error)
}

const graceKeyPrefix = "quickauto:grace:%s:%s:%s"

func graceKey(driverID types.ID, ref ride.Ref) string {
	return fmt.Sprintf(graceKeyPrefix, string(driverID), string(ref.Category), string(ref.ID))
}

type RedisGraceStore struct {
	redis *redis.Client
}

func NewRedisGraceStore(rdb *redis.Client) *RedisGraceStore {
	return &RedisGraceStore{redis: rdb}
}

func (s *RedisGraceStore) Mark(ctx context.Context, driverID types.ID, ref ride.Ref, window time.Duration) error {
	return s.redis.Set(ctx, graceKey(driverID, ref), "1", window).Err()
}

func (s *RedisGraceStore) Within(ctx context.Context, driverID types.ID, refs []ride.Ref) (map[ride.Ref]time.Time, error) {
	out := make(map[ride.Ref]time.Time, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.DurationCmd, len(refs))
	for i, ref := range refs {
		cmds[i] = pipe.PTTL(ctx, graceKey(driverID, ref))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	now := time.Now()
	for i, ref := range refs {
		// Missing keys report a negative TTL.
		if ttl := cmds[i].Val(); ttl > 0 {
			out[ref] = now.Add(ttl)
		}
	}
	return out, nil
}

// MemoryGraceStore keeps grace windows in process; for single-node deployments.
type MemoryGraceStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryGraceStore(now func() time.Time) *MemoryGraceStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryGraceStore{expires: make(map[string]time.Time), now: now}
}

func (s *MemoryGraceStore) Mark(_ context.Context, driverID types.ID, ref ride.Ref, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[graceKey(driverID, ref)] = s.now().Add(window)
	return nil
}

func (s *MemoryGraceStore) Within(_ context.Context, driverID types.ID, refs []ride.Ref) (map[ride.Ref]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
		}
	}
	out := make(map[ride.Ref]time.Time, len(refs))
	for _, ref := range refs {
		if exp, ok := s.expires[graceKey(driverID, ref)]; ok {
			out[ref] = exp
		}
	}
	return out, nil
}
