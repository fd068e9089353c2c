package bank

import (
	"context"
	"sync"
	"time"

	contextutils "osscprep/internal/utils"

	"github.com/redis/go-redis/v9"
)

// UsageSet remembers which question ids a learner has already been served.
// It is only cleared through Reset.
type UsageSet interface {
	// Seen reports, for each id, whether it has been served.
	Seen(ctx context.Context, ids []string) (map[string]bool, error)
	MarkUsed(ctx context.Context, ids ...string) error
	Reset(ctx context.Context) error
	Size(ctx context.Context) (int, error)
}

// MemoryUsageSet is a process-local UsageSet
type MemoryUsageSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryUsageSet returns an empty set
func NewMemoryUsageSet() *MemoryUsageSet {
	return &MemoryUsageSet{ids: make(map[string]struct{})}
}

func (s *MemoryUsageSet) Seen(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			seen[id] = true
		}
	}
	return seen, nil
}

func (s *MemoryUsageSet) MarkUsed(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

func (s *MemoryUsageSet) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
	return nil
}

func (s *MemoryUsageSet) Size(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids), nil
}

// redisSetClient is the subset of the go-redis client used by RedisUsageSet.
type redisSetClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMIsMember(ctx context.Context, key string, members ...interface{}) *redis.BoolSliceCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisUsageSet keeps one redis SET per learner so usage survives restarts.
// The key expires ttl after the last write.
type RedisUsageSet struct {
	client redisSetClient
	key    string
	ttl    time.Duration
}

// NewRedisUsageSet binds a set to key
func NewRedisUsageSet(client redisSetClient, key string, ttl time.Duration) *RedisUsageSet {
	return &RedisUsageSet{client: client, key: key, ttl: ttl}
}

// UsageKey builds the redis key for a learner. The empty learner id maps
// to a shared "global" set.
func UsageKey(prefix, learnerID string) string {
	if learnerID == "" {
		learnerID = "global"
	}
	return prefix + learnerID
}

func (s *RedisUsageSet) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return seen, nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := s.client.SMIsMember(ctx, s.key, members...).Result()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "smismember %s: %v", s.key, err)
	}
	for i, flag := range flags {
		if flag && i < len(ids) {
			seen[ids[i]] = true
		}
	}
	return seen, nil
}

func (s *RedisUsageSet) MarkUsed(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "sadd %s: %v", s.key, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "expire %s: %v", s.key, err)
		}
	}
	return nil
}

func (s *RedisUsageSet) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "del %s: %v", s.key, err)
	}
	return nil
}

func (s *RedisUsageSet) Size(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "scard %s: %v", s.key, err)
	}
	return int(n), nil
}

// UsageTracker hands out one UsageSet per learner. The empty learner id
// is the process-wide set.
type UsageTracker struct {
	mu      sync.Mutex
	sets    map[string]UsageSet
	newSet  func(learnerID string) UsageSet
	backend string
}

// NewMemoryUsageTracker keeps every learner's set in process memory.
func NewMemoryUsageTracker() *UsageTracker {
	return &UsageTracker{
		sets:    make(map[string]UsageSet),
		newSet:  func(string) UsageSet { return NewMemoryUsageSet() },
		backend: "memory",
	}
}

// NewRedisUsageTracker stores each learner's set under prefix+learnerID.
func NewRedisUsageTracker(client redisSetClient, prefix string, ttl time.Duration) *UsageTracker {
	return &UsageTracker{
		sets: make(map[string]UsageSet),
		newSet: func(learnerID string) UsageSet {
			return NewRedisUsageSet(client, UsageKey(prefix, learnerID), ttl)
		},
		backend: "redis",
	}
}

// ForLearner returns the learner's set, creating it on first use.
func (t *UsageTracker) ForLearner(learnerID string) UsageSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.sets[learnerID]; ok {
		return set
	}
	set := t.newSet(learnerID)
	t.sets[learnerID] = set
	return set
}

// Backend names the storage behind the tracker
func (t *UsageTracker) Backend() string { return t.backend }
